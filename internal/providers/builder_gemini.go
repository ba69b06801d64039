package providers

import (
	"context"
	"strings"

	"github.com/pedrolicio/instagram-carousel-generator/internal/adapters/gemini"
	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

func init() {
	RegisterDefinition(Definition{
		Name:        string(models.EndpointConversational),
		Description: "Gemini generateContent (conversational image output)",
		Builder:     buildGeminiTier(models.EndpointConversational),
	})
	RegisterDefinition(Definition{
		Name:        string(models.EndpointLegacyPredict),
		Description: "Imagen predict (instances + parameters)",
		Builder:     buildGeminiTier(models.EndpointLegacyPredict),
	})
}

func buildGeminiTier(kind models.EndpointKind) Builder {
	return func(ctx context.Context, env Env, entry config.TierConfig) (Tier, error) {
		imagen := env.Config.Imagen
		adapter, err := gemini.New(gemini.Options{
			Model:              entry.Model,
			Endpoint:           kind,
			BaseURL:            imagen.BaseURL,
			URL:                entry.URL,
			APIKeyHeader:       imagen.APIKeyHeader,
			HTTPClient:         env.HTTPClient,
			Defaults:           imagen.Defaults.Merge(entry.Defaults),
			ResponseModalities: imagen.ResponseModalities,
			Classifier:         env.Classifier,
		})
		if err != nil {
			return Tier{}, err
		}
		endpoint := strings.TrimSpace(entry.URL)
		if endpoint == "" {
			endpoint = imagen.BaseURL
		}
		return Tier{Host: hostOf(endpoint), Caller: adapter}, nil
	}
}
