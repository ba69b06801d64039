package gemini

import (
	"strings"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type textField struct {
	Text string `json:"text"`
}

type predictInstance struct {
	Prompt              textField  `json:"prompt"`
	NegativePrompt      *textField `json:"negativePrompt,omitempty"`
	NegativePromptSnake *textField `json:"negative_prompt,omitempty"`
}

// predictParameters carries every field in both camelCase and snake_case
// because provider versions disagree on the spelling.
type predictParameters struct {
	SampleCount            int    `json:"sampleCount"`
	SampleCountSnake       int    `json:"sample_count"`
	AspectRatio            string `json:"aspectRatio,omitempty"`
	AspectRatioSnake       string `json:"aspect_ratio,omitempty"`
	OutputMimeType         string `json:"outputMimeType,omitempty"`
	OutputMimeTypeSnake    string `json:"output_mime_type,omitempty"`
	SafetyFilterLevel      string `json:"safetyFilterLevel,omitempty"`
	SafetyFilterLevelSnake string `json:"safety_filter_level,omitempty"`
	PersonGeneration       string `json:"personGeneration,omitempty"`
	PersonGenerationSnake  string `json:"person_generation,omitempty"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

// PromptText renders the conversational prompt, appending the negative
// prompt as a restrictions paragraph.
func PromptText(prompt, negative string) string {
	prompt = strings.TrimSpace(prompt)
	negative = strings.TrimSpace(negative)
	if negative == "" {
		return prompt
	}
	return prompt + "\n\nRestrições: " + negative
}

func buildGenerateContentRequest(req models.GenerationRequest, modalities []string) generateContentRequest {
	out := generateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: PromptText(req.Prompt, req.NegativePrompt)}},
		}},
	}
	if len(modalities) > 0 {
		out.GenerationConfig = &geminiGenerationConfig{ResponseModalities: append([]string(nil), modalities...)}
	}
	return out
}

func buildPredictRequest(req models.GenerationRequest, defaults config.GenerationDefaults) predictRequest {
	instance := predictInstance{Prompt: textField{Text: strings.TrimSpace(req.Prompt)}}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		instance.NegativePrompt = &textField{Text: neg}
		instance.NegativePromptSnake = &textField{Text: neg}
	}
	samples := defaults.SampleCount
	if samples <= 0 {
		samples = 1
	}
	return predictRequest{
		Instances: []predictInstance{instance},
		Parameters: predictParameters{
			SampleCount:            samples,
			SampleCountSnake:       samples,
			AspectRatio:            defaults.AspectRatio,
			AspectRatioSnake:       defaults.AspectRatio,
			OutputMimeType:         defaults.OutputMimeType,
			OutputMimeTypeSnake:    defaults.OutputMimeType,
			SafetyFilterLevel:      defaults.SafetyFilterLevel,
			SafetyFilterLevelSnake: defaults.SafetyFilterLevel,
			PersonGeneration:       defaults.PersonGeneration,
			PersonGenerationSnake:  defaults.PersonGeneration,
		},
	}
}
