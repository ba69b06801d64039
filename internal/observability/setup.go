// Package observability wires OpenTelemetry tracing and the Prometheus
// registry used by the /metrics route.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
)

const namespace = "imagend"

type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	attemptLatency     *promreg.HistogramVec
	fallbackCounter    *promreg.CounterVec
	outcomeCounter     *promreg.CounterVec
	archivedCounter    *promreg.CounterVec
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("imagend"),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		endpoint, opts := otlpEndpoint(cfg.OTLPEndpoint)
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))

		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		if err := provider.registerCollectors(registry); err != nil {
			return nil, err
		}
	}

	return provider, nil
}

func otlpEndpoint(raw string) (string, []otlptracegrpc.Option) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), nil
	default:
		return endpoint, []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
	}
}

func (p *Provider) registerCollectors(registry *promreg.Registry) error {
	latencyBuckets := []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10}
	attemptBuckets := []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}

	p.httpRequestCounter = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	p.httpRequestLatency = promreg.NewHistogramVec(
		promreg.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   latencyBuckets,
		},
		[]string{"method", "route", "status"},
	)
	p.attemptLatency = promreg.NewHistogramVec(
		promreg.HistogramOpts{
			Namespace: namespace,
			Name:      "model_attempt_duration_seconds",
			Help:      "Duration of single model attempts, including file downloads.",
			Buckets:   attemptBuckets,
		},
		[]string{"model", "endpoint", "outcome", "status"},
	)
	p.fallbackCounter = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_steps_total",
			Help:      "Number of times the chain advanced past a model.",
		},
		[]string{"model"},
	)
	p.outcomeCounter = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by final outcome.",
		},
		[]string{"outcome", "fallback"},
	)
	p.archivedCounter = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_payloads_total",
			Help:      "Successful provider payloads without an extractable image.",
		},
		[]string{"model", "archived"},
	)
	for _, c := range []promreg.Collector{p.httpRequestCounter, p.httpRequestLatency, p.attemptLatency, p.fallbackCounter, p.outcomeCounter, p.archivedCounter} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil || p.httpRequestCounter == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// RecordAttempt observes one model attempt. Advancing past a failed model
// also counts as a fallback step.
func (p *Provider) RecordAttempt(model, endpoint, outcome string, status int, advanced bool, duration time.Duration) {
	if p == nil || p.attemptLatency == nil {
		return
	}
	p.attemptLatency.WithLabelValues(model, endpoint, outcome, strconv.Itoa(status)).Observe(duration.Seconds())
	if advanced {
		p.fallbackCounter.WithLabelValues(model).Inc()
	}
}

func (p *Provider) RecordOutcome(outcome string, fallbackUsed bool) {
	if p == nil || p.outcomeCounter == nil {
		return
	}
	p.outcomeCounter.WithLabelValues(outcome, strconv.FormatBool(fallbackUsed)).Inc()
}

func (p *Provider) RecordUnresolved(model string, archived bool) {
	if p == nil || p.archivedCounter == nil {
		return
	}
	p.archivedCounter.WithLabelValues(model, strconv.FormatBool(archived)).Inc()
}
