package httpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.opentelemetry.io/otel"

	"github.com/pedrolicio/instagram-carousel-generator/internal/app"
	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/executor"
	publicroutes "github.com/pedrolicio/instagram-carousel-generator/internal/httpserver/public"
)

const allowedMethods = "POST,OPTIONS"

// Server wraps the Fiber app and configuration.
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *app.Container
}

// New constructs a server with baseline middleware ready.
func New(container *app.Container, exec *executor.Executor) (*Server, error) {
	if container == nil {
		return nil, fmt.Errorf("dependency container is required")
	}
	cfg := container.Config
	if cfg == nil {
		return nil, fmt.Errorf("container missing config")
	}
	if exec == nil {
		exec = executor.New(container)
	}

	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ServerHeader:          "imagend",
		BodyLimit:             bodyLimit,
		ReadTimeout:           cfg.Server.ReadHeaderTimeout,
		ReadBufferSize:        8 * 1024,
		WriteBufferSize:       4 * 1024,
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(preflightDefaults(cfg.CORS))
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.CORS.AllowedOrigins),
		AllowMethods: allowedMethods,
		MaxAge:       cfg.CORS.MaxAge,
	}))

	if obs := container.Observability; obs != nil {
		app.Use(metricsMiddleware(obs))
		if obs.TracerProvider() != nil {
			app.Use(tracingMiddleware(otel.Tracer("imagend/http")))
		}
	}

	if container.Observability != nil {
		if handler := container.Observability.PrometheusHandler(); handler != nil {
			app.Get("/metrics", adaptor.HTTPHandler(handler))
		}
	}

	registerHealthRoutes(app, container)
	publicroutes.Register(app, container, exec)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}, nil
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks until context cancellation or a fatal listen error occurs.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Server.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		timeout := s.cfg.Server.GracefulShutdownDelay
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := s.app.ShutdownWithContext(shutdownCtx)
		if err == nil {
			err = <-errCh
		}
		return err
	case err := <-errCh:
		return err
	}
}

// preflightDefaults fills in the configured header list when a preflight does
// not name the headers it wants, so the cors middleware always answers with
// an explicit Access-Control-Allow-Headers.
func preflightDefaults(cfg config.CORSConfig) fiber.Handler {
	defaults := strings.Join(cfg.AllowedHeaders, ",")
	return func(c *fiber.Ctx) error {
		c.Vary(fiber.HeaderOrigin)
		if c.Method() == fiber.MethodOptions && defaults != "" &&
			strings.TrimSpace(c.Get(fiber.HeaderAccessControlRequestHeaders)) == "" {
			c.Request().Header.Set(fiber.HeaderAccessControlRequestHeaders, defaults)
		}
		return c.Next()
	}
}

// corsOrigins renders the allow-list for the cors middleware. A wildcard
// anywhere in the list wins.
func corsOrigins(origins []string) string {
	cleaned := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			return "*"
		}
		cleaned = append(cleaned, origin)
	}
	if len(cleaned) == 0 {
		return "*"
	}
	return strings.Join(cleaned, ",")
}

func registerHealthRoutes(app *fiber.App, container *app.Container) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]fiber.Map)
		overall := "ok"

		if container != nil && container.Redis != nil {
			start := time.Now()
			err := container.Redis.Ping(ctx).Err()
			check := fiber.Map{
				"status":     "ok",
				"latency_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				check["status"] = "error"
				check["error"] = err.Error()
				overall = "degraded"
			}
			checks["redis"] = check
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": overall,
			"checks": checks,
			"tiers":  len(container.Tiers),
		})
	})
}
