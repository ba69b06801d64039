package providers

import (
	"context"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

// ImageCaller performs one generation attempt against a model endpoint and
// returns the raw provider document. Failures are *classify.Error values or
// context errors.
type ImageCaller interface {
	Call(ctx context.Context, attempt models.ModelAttempt, req models.GenerationRequest) (document.Value, error)
}

// CallerFunc adapts a function to ImageCaller.
type CallerFunc func(ctx context.Context, attempt models.ModelAttempt, req models.GenerationRequest) (document.Value, error)

func (f CallerFunc) Call(ctx context.Context, attempt models.ModelAttempt, req models.GenerationRequest) (document.Value, error) {
	return f(ctx, attempt, req)
}
