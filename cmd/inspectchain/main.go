package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/providers"
)

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

	tiers, err := providers.NewFactory(cfg, nil).Build(context.Background())
	if err != nil {
		log.Fatalf("build chain: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(providers.Describe(tiers)); err != nil {
		log.Fatalf("encode chain: %v", err)
	}
}
