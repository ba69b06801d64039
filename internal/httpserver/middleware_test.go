package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	app := fiber.New()
	app.Use(tracingMiddleware(tp.Tracer("test")))
	app.Get("/slides/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusBadGateway)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/slides/42", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /slides/:id", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}
