package httputil

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorBody is the payload under the "error" key of every failure response.
type ErrorBody struct {
	Message           string   `json:"message"`
	Details           string   `json:"details,omitempty"`
	RetryAfterSeconds *float64 `json:"retryAfterSeconds,omitempty"`
	Example           string   `json:"exemplo,omitempty"`
}

// WriteError standardizes JSON error responses.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	return WriteErrorBody(c, status, ErrorBody{Message: msg})
}

// WriteErrorBody writes {"error": body} with the given status.
func WriteErrorBody(c *fiber.Ctx, status int, body ErrorBody) error {
	if body.Message == "" {
		body.Message = http.StatusText(status)
		if body.Message == "" {
			body.Message = "unknown error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"error": body,
	})
}
