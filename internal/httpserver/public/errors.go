package public

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/executor"
	"github.com/pedrolicio/instagram-carousel-generator/internal/fallback"
	"github.com/pedrolicio/instagram-carousel-generator/internal/httpserver/httputil"
	"github.com/pedrolicio/instagram-carousel-generator/internal/limits"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/requestctx"
)

// StatusClientClosedRequest reports a generation whose user context was
// cancelled. fasthttp does not cancel it when the client disconnects, so it
// only happens when a middleware installs a cancellable context; expiry of
// server.request_timeout is reported as 504 instead.
const StatusClientClosedRequest = 499

const (
	msgCancelled   = "Requisição cancelada."
	msgTimeout     = "Tempo limite excedido ao gerar a imagem."
	msgRateLimited = "Limite de requisições excedido para esta API Key."
)

// writeGenerationError maps executor and provider failures to the JSON error
// contract.
func writeGenerationError(c *fiber.Ctx, err error) error {
	return writeGenerationErrorWith(c, err, nil)
}

// writeGenerationErrorWith writes the mapped error next to extra top-level
// fields, such as the partial result of a batch.
func writeGenerationErrorWith(c *fiber.Ctx, err error, extra fiber.Map) error {
	requestctx.Logger(c.UserContext()).Warn("image request failed", "error", err.Error())

	status, body := generationError(c, err)
	if body.Message == "" {
		body.Message = msgGenerateFailure
	}
	payload := fiber.Map{"error": body}
	for k, v := range extra {
		payload[k] = v
	}
	return c.Status(status).JSON(payload)
}

// generationError returns the status and body for err. Retry-After is set on
// c for rate limit and quota failures.
func generationError(c *fiber.Ctx, err error) (int, httputil.ErrorBody) {
	var limitErr *limits.LimitError
	switch {
	case errors.As(err, &limitErr):
		wait := math.Ceil(limitErr.RetryAfter.Seconds())
		setRetryAfter(c, wait)
		return fiber.StatusTooManyRequests, httputil.ErrorBody{
			Message:           msgRateLimited,
			RetryAfterSeconds: &wait,
		}
	case errors.Is(err, fallback.ErrCancelled):
		if errors.Is(err, context.DeadlineExceeded) {
			return fiber.StatusGatewayTimeout, httputil.ErrorBody{Message: msgTimeout}
		}
		return StatusClientClosedRequest, httputil.ErrorBody{Message: msgCancelled}
	case errors.Is(err, models.ErrAPIKeyRequired):
		return fiber.StatusUnauthorized, httputil.ErrorBody{Message: msgAPIKeyRequired}
	case errors.Is(err, models.ErrPromptRequired):
		return fiber.StatusBadRequest, httputil.ErrorBody{
			Message: msgPromptRequired,
			Example: classify.ExamplePrompt,
		}
	}
	if status, msg, ok := executor.AsAPIError(err); ok {
		return status, httputil.ErrorBody{Message: msg}
	}

	ce, ok := fallback.AsClassified(err)
	if !ok {
		return fiber.StatusInternalServerError, httputil.ErrorBody{
			Message: msgGenerateFailure,
			Example: classify.ExamplePrompt,
		}
	}

	switch ce.Kind {
	case classify.Safety:
		return fiber.StatusUnprocessableEntity, httputil.ErrorBody{
			Message: classify.SafetyMessage,
			Details: ce.Details,
		}
	case classify.Quota:
		body := httputil.ErrorBody{Message: ce.Message, Details: ce.Details}
		if ce.RetryAfterSeconds != nil {
			wait := *ce.RetryAfterSeconds
			body.RetryAfterSeconds = &wait
			setRetryAfter(c, wait)
		}
		return fiber.StatusTooManyRequests, body
	default:
		return providerStatus(ce.Status), httputil.ErrorBody{
			Message: ce.Message,
			Details: ce.Details,
			Example: classify.ExamplePrompt,
		}
	}
}

// providerStatus mirrors the last provider status; failures without an HTTP
// response become 502.
func providerStatus(status int) int {
	if status >= 400 && status <= 599 {
		return status
	}
	return fiber.StatusBadGateway
}

func setRetryAfter(c *fiber.Ctx, seconds float64) {
	if seconds <= 0 {
		return
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(seconds))))
}
