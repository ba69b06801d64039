package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

// Env holds the shared dependencies handed to builders.
type Env struct {
	Config     *config.Config
	HTTPClient *http.Client
	Classifier *classify.Classifier
}

// Builder constructs a tier for one configured chain entry.
type Builder func(ctx context.Context, env Env, entry config.TierConfig) (Tier, error)

// Factory builds the fallback chain from configuration using a registry of
// builders keyed by endpoint kind.
type Factory struct {
	env      Env
	builders map[string]Builder
}

// NewFactory creates a factory with the default registry. A nil HTTP client
// selects one with the configured request timeout.
func NewFactory(cfg *config.Config, client *http.Client) *Factory {
	if cfg == nil {
		panic("providers: config is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Imagen.RequestTimeout}
	}
	return &Factory{
		env: Env{
			Config:     cfg,
			HTTPClient: client,
			Classifier: classify.New(cfg.Imagen.FallbackMarkers),
		},
		builders: cloneDefaultBuilders(),
	}
}

// Register allows tests or callers to override builders.
func (f *Factory) Register(name string, builder Builder) {
	if f.builders == nil {
		f.builders = make(map[string]Builder)
	}
	f.builders[name] = builder
}

// Classifier returns the classifier shared by every tier.
func (f *Factory) Classifier() *classify.Classifier {
	return f.env.Classifier
}

// Build instantiates the enabled tiers in configuration order.
func (f *Factory) Build(ctx context.Context) ([]Tier, error) {
	entries := f.env.Config.Imagen.EnabledTiers()
	tiers := make([]Tier, 0, len(entries))
	for _, entry := range entries {
		kind, ok := models.ParseEndpointKind(entry.Endpoint)
		if !ok {
			return nil, fmt.Errorf("model %q: endpoint %q unsupported", entry.Model, entry.Endpoint)
		}
		builder, ok := f.builders[string(kind)]
		if !ok {
			return nil, fmt.Errorf("model %q: no builder for endpoint %q", entry.Model, kind)
		}
		tier, err := builder(ctx, f.env, entry)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", entry.Model, err)
		}
		tier.Attempt = models.ModelAttempt{
			ModelID:       entry.Model,
			EndpointKind:  kind,
			SequenceIndex: len(tiers),
		}
		tiers = append(tiers, tier)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("no model tiers configured")
	}
	return tiers, nil
}
