package main

import (
	"encoding/json"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
)

const redacted = "<redacted>"

type options struct {
	Config string `short:"f" long:"config" description:"path to imagend.yaml"`
}

func main() {
	opts := &options{}
	if _, err := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash).Parse(); err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.Load(config.Options{ConfigFile: opts.Config})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	redact(cfg)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		log.Fatalf("encode config: %v", err)
	}
}

func redact(cfg *config.Config) {
	if cfg.Imagen.DefaultAPIKey != "" {
		cfg.Imagen.DefaultAPIKey = redacted
	}
	if cfg.Archive.EncryptionKey != "" {
		cfg.Archive.EncryptionKey = redacted
	}
	if cfg.Archive.S3.SecretAccessKey != "" {
		cfg.Archive.S3.SecretAccessKey = redacted
	}
	cfg.Redis.URL = redactURL(cfg.Redis.URL)
}

// redactURL masks the password of a redis:// style URL. Bare host:port
// values carry no credentials and are returned as is.
func redactURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
