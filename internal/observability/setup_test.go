package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
)

func TestSetupDisabledReturnsNil(t *testing.T) {
	p, err := Setup(context.Background(), config.ObservabilityConfig{})
	require.NoError(t, err)
	require.Nil(t, p)

	// Recording on a nil provider is a no-op.
	p.RecordAttempt("m", "conversational", "success", 200, false, time.Second)
	p.RecordOutcome("success", false)
	p.RecordUnresolved("m", false)
	require.Nil(t, p.PrometheusHandler())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestMetricsExposed(t *testing.T) {
	p, err := Setup(context.Background(), config.ObservabilityConfig{EnableMetrics: true})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.RecordHTTPRequest(context.Background(), "POST", "/api/imagen", 200, 2*time.Second)
	p.RecordAttempt("gemini-2.5-flash-image", "conversational", "retryable", 404, true, time.Second)
	p.RecordAttempt("imagen-4.0-generate-001", "legacy_predict", "success", 200, false, 3*time.Second)
	p.RecordOutcome("success", true)
	p.RecordUnresolved("gemini-2.5-flash-image", true)

	rec := httptest.NewRecorder()
	p.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"imagend_http_requests_total",
		"imagend_model_attempt_duration_seconds",
		`imagend_fallback_steps_total{model="gemini-2.5-flash-image"} 1`,
		`imagend_generations_total{fallback="true",outcome="success"} 1`,
		"imagend_unresolved_payloads_total",
	} {
		require.Contains(t, string(body), name)
	}
}

func TestOTLPEndpointScheme(t *testing.T) {
	endpoint, opts := otlpEndpoint("https://collector:4317")
	require.Equal(t, "collector:4317", endpoint)
	require.Empty(t, opts)

	endpoint, opts = otlpEndpoint("")
	require.Equal(t, "localhost:4317", endpoint)
	require.Len(t, opts, 1)
}
