package models

import (
	"errors"
	"strings"
)

var (
	// ErrPromptRequired is returned when a generation request carries no prompt.
	ErrPromptRequired = errors.New("prompt is required")
	// ErrAPIKeyRequired is returned when no provider credential is available.
	ErrAPIKeyRequired = errors.New("api key is required")
)

// EndpointKind selects the request body shape and endpoint suffix of a model.
type EndpointKind string

const (
	// EndpointConversational posts {contents:[...]} to :generateContent.
	EndpointConversational EndpointKind = "conversational"
	// EndpointLegacyPredict posts {instances, parameters} to :predict.
	EndpointLegacyPredict EndpointKind = "legacy_predict"
)

// ParseEndpointKind normalizes configuration spellings of an endpoint kind.
func ParseEndpointKind(raw string) (EndpointKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "conversational", "generate_content", "generatecontent":
		return EndpointConversational, true
	case "legacy_predict", "legacypredict", "predict", "legacy":
		return EndpointLegacyPredict, true
	default:
		return "", false
	}
}

// Suffix returns the REST verb appended to the model path.
func (k EndpointKind) Suffix() string {
	if k == EndpointLegacyPredict {
		return ":predict"
	}
	return ":generateContent"
}

// GenerationRequest is the caller input for one image. It is passed by value
// and never retained after the call returns.
type GenerationRequest struct {
	Prompt         string
	NegativePrompt string
	APIKey         string
}

// Normalize trims surrounding whitespace from every field.
func (r GenerationRequest) Normalize() GenerationRequest {
	return GenerationRequest{
		Prompt:         strings.TrimSpace(r.Prompt),
		NegativePrompt: strings.TrimSpace(r.NegativePrompt),
		APIKey:         strings.TrimSpace(r.APIKey),
	}
}

// Validate checks the required fields.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.APIKey) == "" {
		return ErrAPIKeyRequired
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrPromptRequired
	}
	return nil
}

// ModelAttempt is one entry of the fallback chain.
type ModelAttempt struct {
	ModelID       string
	EndpointKind  EndpointKind
	SequenceIndex int
}

// ExtractedImage holds exactly one representation of a generated image.
type ExtractedImage struct {
	Base64  string
	FileURI string
}

// IsZero reports whether neither representation is present.
func (i ExtractedImage) IsZero() bool {
	return i.Base64 == "" && i.FileURI == ""
}

// Slide carries the visual hints of one carousel slide.
type Slide struct {
	SlideNumber       int    `json:"slideNumber"`
	Title             string `json:"title,omitempty"`
	Subtitle          string `json:"subtitle,omitempty"`
	Body              string `json:"body,omitempty"`
	VisualDescription string `json:"visualDescription,omitempty"`
	Prompt            string `json:"prompt,omitempty"`
	NegativePrompt    string `json:"negativePrompt,omitempty"`
}

// BrandKit is the subset of a client's brand kit that influences slide visuals.
type BrandKit struct {
	Tone           string            `json:"tone,omitempty"`
	Colors         map[string]string `json:"colors,omitempty"`
	VisualStyle    string            `json:"visualStyle,omitempty"`
	Composition    string            `json:"composition,omitempty"`
	VisualElements []string          `json:"visualElements,omitempty"`
	ReferenceNotes string            `json:"referenceNotes,omitempty"`
}

// SlideImage is the per-slide outcome of a batch generation.
type SlideImage struct {
	SlideNumber int    `json:"slideNumber"`
	ModelUsed   string `json:"modelUsed,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	FileURI     string `json:"fileUri,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

const (
	SlideStatusGenerated = "generated"
	SlideStatusFailed    = "failed"
)
