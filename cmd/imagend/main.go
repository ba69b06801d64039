package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pedrolicio/instagram-carousel-generator/internal/app"
	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/executor"
	"github.com/pedrolicio/instagram-carousel-generator/internal/httpserver"
	"github.com/pedrolicio/instagram-carousel-generator/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	redisClient, err := redisclient.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		log.Printf("redis disabled: rate limiting and idempotency caching are off")
	}

	container, err := app.NewContainer(ctx, cfg, redisClient)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}
	if container.Observability != nil {
		defer container.Observability.Shutdown(context.Background())
	}

	server, err := httpserver.New(container, executor.New(container))
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	log.Printf("imagend listening on %s", cfg.Server.ListenAddr)
	if err := server.Listen(ctx); err != nil && err != context.Canceled {
		log.Fatalf("server stopped: %v", err)
	}
}
