package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the image generation service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Cache         CacheConfig         `mapstructure:"cache"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Imagen        ImagenConfig        `mapstructure:"imagen"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	ReadHeaderTimeout     time.Duration `mapstructure:"read_header_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

// RedisConfig is optional. With an empty URL rate limiting and idempotency
// caching are disabled.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	ParallelRequests  int `mapstructure:"parallel_requests"`
}

type CacheConfig struct {
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// ImagenConfig controls the provider endpoints and the fallback chain.
type ImagenConfig struct {
	BaseURL            string             `mapstructure:"base_url"`
	APIKeyHeader       string             `mapstructure:"api_key_header"`
	DefaultAPIKey      string             `mapstructure:"default_api_key"`
	Tiers              []TierConfig       `mapstructure:"tiers"`
	Defaults           GenerationDefaults `mapstructure:"defaults"`
	FallbackMarkers    []string           `mapstructure:"fallback_markers"`
	ResponseModalities []string           `mapstructure:"response_modalities"`
	RequestTimeout     time.Duration      `mapstructure:"request_timeout"`
	MaxDownloadMB      int                `mapstructure:"max_download_mb"`
	BatchConcurrency   int                `mapstructure:"batch_concurrency"`
	MaxSlides          int                `mapstructure:"max_slides"`
}

type ArchiveConfig struct {
	Enabled       bool               `mapstructure:"enabled"`
	Storage       string             `mapstructure:"storage"`
	EncryptionKey string             `mapstructure:"encryption_key"`
	S3            ArchiveS3Config    `mapstructure:"s3"`
	Local         ArchiveLocalConfig `mapstructure:"local"`
}

type ArchiveS3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type ArchiveLocalConfig struct {
	Directory string `mapstructure:"directory"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("IMAGEND_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("imagend")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("IMAGEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Imagen.DefaultAPIKey) == "" {
		cfg.Imagen.DefaultAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and fills derived defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr must be provided")
	}
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 10
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.RateLimits.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limits.requests_per_minute must be >= 0")
	}
	if c.RateLimits.ParallelRequests < 0 {
		return fmt.Errorf("rate_limits.parallel_requests must be >= 0")
	}
	if c.Cache.IdempotencyTTL <= 0 {
		c.Cache.IdempotencyTTL = 30 * time.Minute
	}
	c.CORS.AllowedOrigins = normalizeStringSlice(c.CORS.AllowedOrigins)
	c.CORS.AllowedHeaders = normalizeStringSlice(c.CORS.AllowedHeaders)

	if err := c.Imagen.validate(); err != nil {
		return err
	}
	if err := c.Archive.validate(); err != nil {
		return err
	}
	return nil
}

func (i *ImagenConfig) validate() error {
	i.BaseURL = strings.TrimSuffix(strings.TrimSpace(i.BaseURL), "/")
	if i.BaseURL == "" {
		return fmt.Errorf("imagen.base_url must be provided")
	}
	if strings.TrimSpace(i.APIKeyHeader) == "" {
		i.APIKeyHeader = "X-Goog-Api-Key"
	}
	if len(i.Tiers) == 0 {
		return fmt.Errorf("imagen.tiers must list at least one model")
	}
	for idx := range i.Tiers {
		if err := i.Tiers[idx].validate(); err != nil {
			return fmt.Errorf("imagen.tiers[%d]: %w", idx, err)
		}
	}
	if len(i.EnabledTiers()) == 0 {
		return fmt.Errorf("imagen.tiers must enable at least one model")
	}
	if err := i.Defaults.validate(); err != nil {
		return fmt.Errorf("imagen.defaults: %w", err)
	}
	i.FallbackMarkers = normalizeStringSlice(i.FallbackMarkers)
	i.ResponseModalities = normalizeStringSlice(i.ResponseModalities)
	if i.RequestTimeout <= 0 {
		i.RequestTimeout = 120 * time.Second
	}
	if i.MaxDownloadMB <= 0 {
		i.MaxDownloadMB = 20
	}
	if i.BatchConcurrency <= 0 {
		i.BatchConcurrency = 1
	}
	if i.MaxSlides <= 0 {
		i.MaxSlides = 10
	}
	return nil
}

// EnabledTiers returns the configured tiers in chain order, skipping disabled
// entries.
func (i ImagenConfig) EnabledTiers() []TierConfig {
	out := make([]TierConfig, 0, len(i.Tiers))
	for _, tier := range i.Tiers {
		if tier.IsEnabled() {
			out = append(out, tier)
		}
	}
	return out
}

func (a *ArchiveConfig) validate() error {
	if strings.TrimSpace(a.Storage) == "" {
		a.Storage = "local"
	}
	switch strings.ToLower(a.Storage) {
	case "local", "s3":
	default:
		return fmt.Errorf("archive.storage must be local or s3")
	}
	if a.Enabled && strings.EqualFold(a.Storage, "s3") && strings.TrimSpace(a.S3.Bucket) == "" {
		return fmt.Errorf("archive.s3.bucket must be provided for s3 storage")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 10)
	v.SetDefault("server.request_timeout", "300s")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("rate_limits.requests_per_minute", 60)
	v.SetDefault("rate_limits.parallel_requests", 4)

	v.SetDefault("cache.idempotency_ttl", "30m")

	v.SetDefault("cors.allowed_origins", []string{"*", "http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "X-Goog-Api-Key", "Idempotency-Key"})
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("imagen.base_url", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("imagen.api_key_header", "X-Goog-Api-Key")
	v.SetDefault("imagen.default_api_key", "")
	v.SetDefault("imagen.tiers", DefaultTiers())
	v.SetDefault("imagen.defaults.sample_count", 1)
	v.SetDefault("imagen.defaults.aspect_ratio", "1:1")
	v.SetDefault("imagen.defaults.output_mime_type", "image/png")
	v.SetDefault("imagen.defaults.safety_filter_level", "block_some")
	v.SetDefault("imagen.defaults.person_generation", "block_all")
	v.SetDefault("imagen.fallback_markers", []string{
		"legacy", "predict", "deprecated", "not found",
		"imagen-3.0", "imagen-4.0", "gemini-2.5", "flash-image",
	})
	v.SetDefault("imagen.response_modalities", []string{})
	v.SetDefault("imagen.request_timeout", "120s")
	v.SetDefault("imagen.max_download_mb", 20)
	v.SetDefault("imagen.batch_concurrency", 1)
	v.SetDefault("imagen.max_slides", 10)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.storage", "local")
	v.SetDefault("archive.encryption_key", "")
	v.SetDefault("archive.local.directory", "./data/archive")
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.prefix", "imagend")
	v.SetDefault("archive.s3.region", "")
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.use_path_style", false)
	v.SetDefault("archive.s3.access_key_id", "")
	v.SetDefault("archive.s3.secret_access_key", "")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
