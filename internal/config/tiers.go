package config

import (
	"fmt"
	"strings"
)

const (
	EndpointConversational = "conversational"
	EndpointLegacyPredict  = "legacy_predict"
)

// TierConfig is one entry of the fallback chain. Order in the list is the
// order in which models are tried.
type TierConfig struct {
	Model    string              `mapstructure:"model" json:"model"`
	Endpoint string              `mapstructure:"endpoint" json:"endpoint"`
	URL      string              `mapstructure:"url" json:"url,omitempty"`
	Enabled  *bool               `mapstructure:"enabled" json:"enabled,omitempty"`
	Defaults *GenerationDefaults `mapstructure:"defaults" json:"defaults,omitempty"`
}

func (t TierConfig) IsEnabled() bool {
	if t.Enabled == nil {
		return true
	}
	return *t.Enabled
}

func (t *TierConfig) validate() error {
	t.Model = strings.TrimSpace(t.Model)
	if t.Model == "" {
		return fmt.Errorf("model must be provided")
	}
	switch strings.ToLower(strings.TrimSpace(t.Endpoint)) {
	case EndpointConversational, "generatecontent", "generate_content":
		t.Endpoint = EndpointConversational
	case EndpointLegacyPredict, "legacypredict", "predict":
		t.Endpoint = EndpointLegacyPredict
	case "":
		if strings.HasPrefix(strings.ToLower(t.Model), "imagen") {
			t.Endpoint = EndpointLegacyPredict
		} else {
			t.Endpoint = EndpointConversational
		}
	default:
		return fmt.Errorf("endpoint %q must be conversational or legacy_predict", t.Endpoint)
	}
	t.URL = strings.TrimSpace(t.URL)
	if t.Defaults != nil {
		if err := t.Defaults.validate(); err != nil {
			return fmt.Errorf("defaults: %w", err)
		}
	}
	return nil
}

// GenerationDefaults are the parameters sent to legacy predict endpoints.
type GenerationDefaults struct {
	SampleCount       int    `mapstructure:"sample_count" json:"sample_count,omitempty"`
	AspectRatio       string `mapstructure:"aspect_ratio" json:"aspect_ratio,omitempty"`
	OutputMimeType    string `mapstructure:"output_mime_type" json:"output_mime_type,omitempty"`
	SafetyFilterLevel string `mapstructure:"safety_filter_level" json:"safety_filter_level,omitempty"`
	PersonGeneration  string `mapstructure:"person_generation" json:"person_generation,omitempty"`
}

func (d *GenerationDefaults) validate() error {
	if d.SampleCount < 0 || d.SampleCount > 4 {
		return fmt.Errorf("sample_count must be between 0 and 4")
	}
	if ar := strings.TrimSpace(d.AspectRatio); ar != "" && !strings.Contains(ar, ":") {
		return fmt.Errorf("aspect_ratio %q must look like W:H", ar)
	}
	return nil
}

// Merge overlays the non-empty fields of override on d.
func (d GenerationDefaults) Merge(override *GenerationDefaults) GenerationDefaults {
	if override == nil {
		return d
	}
	out := d
	if override.SampleCount > 0 {
		out.SampleCount = override.SampleCount
	}
	if v := strings.TrimSpace(override.AspectRatio); v != "" {
		out.AspectRatio = v
	}
	if v := strings.TrimSpace(override.OutputMimeType); v != "" {
		out.OutputMimeType = v
	}
	if v := strings.TrimSpace(override.SafetyFilterLevel); v != "" {
		out.SafetyFilterLevel = v
	}
	if v := strings.TrimSpace(override.PersonGeneration); v != "" {
		out.PersonGeneration = v
	}
	if out.SampleCount <= 0 {
		out.SampleCount = 1
	}
	return out
}

// DefaultTiers is the stock chain: the conversational Gemini image model
// first, then the Imagen 4 predict models.
func DefaultTiers() []map[string]any {
	return []map[string]any{
		{"model": "gemini-2.5-flash-image", "endpoint": EndpointConversational},
		{"model": "imagen-4.0-generate-001", "endpoint": EndpointLegacyPredict},
		{"model": "imagen-4.0-ultra-generate-001", "endpoint": EndpointLegacyPredict},
	}
}
