// Package app assembles the runtime dependencies shared by the HTTP server
// and the operator tools.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pedrolicio/instagram-carousel-generator/internal/archive"
	"github.com/pedrolicio/instagram-carousel-generator/internal/cache"
	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/fileref"
	"github.com/pedrolicio/instagram-carousel-generator/internal/limits"
	"github.com/pedrolicio/instagram-carousel-generator/internal/observability"
	"github.com/pedrolicio/instagram-carousel-generator/internal/providers"
	"github.com/pedrolicio/instagram-carousel-generator/internal/storage/blob"
)

// Container aggregates runtime dependencies for handlers and tools. Redis,
// Archive and Observability are nil when disabled.
type Container struct {
	Config          *config.Config
	Redis           *redis.Client
	Factory         *providers.Factory
	Tiers           []providers.Tier
	Resolver        *fileref.Resolver
	RateLimiter     *limits.RateLimiter
	DefaultKeyLimit limits.LimitConfig
	Idempotency     *cache.IdempotencyCache
	Observability   *observability.Provider
	Archive         *archive.Archive
}

// NewContainer builds a dependency container. redisClient may be nil.
func NewContainer(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	factory := providers.NewFactory(cfg, nil)
	tiers, err := factory.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build model chain: %w", err)
	}

	resolver := fileref.New(fileref.Options{
		Timeout:      cfg.Imagen.RequestTimeout,
		APIKeyHeader: cfg.Imagen.APIKeyHeader,
		MaxBytes:     int64(cfg.Imagen.MaxDownloadMB) << 20,
	})

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	var payloadArchive *archive.Archive
	if cfg.Archive.Enabled {
		store, err := blob.New(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("init archive store: %w", err)
		}
		payloadArchive = archive.New(store)
	}

	container := &Container{
		Config:          cfg,
		Factory:         factory,
		Tiers:           tiers,
		Resolver:        resolver,
		DefaultKeyLimit: limits.FromConfig(cfg.RateLimits),
		Observability:   obsProvider,
		Archive:         payloadArchive,
	}
	if redisClient != nil {
		container.Redis = redisClient
		container.RateLimiter = limits.NewRateLimiter(redisClient)
		container.Idempotency = cache.NewIdempotencyCache(redisClient, cfg.Cache.IdempotencyTTL)
	}

	for _, info := range providers.Describe(tiers) {
		slog.Default().Info("model tier ready",
			slog.Int("sequence", info.Sequence),
			slog.String("model", info.Model),
			slog.String("endpoint", info.Endpoint),
			slog.String("host", info.Host),
		)
	}
	return container, nil
}
