package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
)

// FallbackPredicate decides whether a failure with the given HTTP status and
// lower-cased message may be retried on the next model tier.
type FallbackPredicate func(status int, message string) bool

// DefaultFallbackMarkers are message fragments that indicate the requested
// model is unavailable for the key or endpoint.
var DefaultFallbackMarkers = []string{
	"legacy",
	"predict",
	"deprecated",
	"not found",
	"imagen-3.0",
	"imagen-4.0",
	"gemini-2.5",
	"flash-image",
}

// MarkerPredicate allows fallback on 404, 405 and 5xx statuses, or when the
// message contains any of the markers. The matching is deliberately loose.
func MarkerPredicate(markers []string) FallbackPredicate {
	normalized := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			normalized = append(normalized, m)
		}
	}
	return func(status int, message string) bool {
		if status == http.StatusNotFound || status == http.StatusMethodNotAllowed || status >= 500 {
			return true
		}
		for _, marker := range normalized {
			if strings.Contains(message, marker) {
				return true
			}
		}
		return false
	}
}

// DefaultFallbackPredicate uses DefaultFallbackMarkers.
var DefaultFallbackPredicate = MarkerPredicate(DefaultFallbackMarkers)

var quotaMarkers = []string{"quota", "rate limit", "resource exhausted", "resource_exhausted"}

// Classifier classifies provider failures. The zero value uses the default
// fallback predicate and the wall clock.
type Classifier struct {
	Fallback FallbackPredicate
	Now      func() time.Time
}

// New returns a classifier whose fallback predicate matches the given
// markers. An empty list selects DefaultFallbackMarkers.
func New(markers []string) *Classifier {
	if len(markers) == 0 {
		return &Classifier{Fallback: DefaultFallbackPredicate}
	}
	return &Classifier{Fallback: MarkerPredicate(markers)}
}

var defaultClassifier = &Classifier{}

// Classify classifies a failure using the default classifier.
func Classify(status int, payload document.Value, message string, header http.Header) *Error {
	return defaultClassifier.Classify(status, payload, message, header)
}

// Classify inspects the HTTP status, the decoded body, the raw message and
// the response headers. It never panics on missing, empty or cyclic input.
func (c *Classifier) Classify(status int, payload document.Value, message string, header http.Header) *Error {
	providerMsg := ProviderMessage(payload)
	if strings.TrimSpace(message) == "" {
		message = providerMsg
	}
	if strings.TrimSpace(message) == "" {
		if status > 0 {
			message = fmt.Sprintf("Falha na chamada da API (%d).", status)
		} else {
			message = "Falha ao gerar imagem."
		}
	}

	out := &Error{
		Kind:    Fatal,
		Status:  status,
		Payload: payload,
		Message: message,
	}

	if details, blocked := ScanSafety(payload); blocked {
		out.Kind = Safety
		out.Message = SafetyMessage
		out.Details = details
		return out
	}

	lowered := strings.ToLower(message + " " + providerMsg)
	if isQuota(status, payload, lowered) {
		out.Kind = Quota
		out.RetryAfterSeconds = RetryAfter(header, payload, message, c.now())
		out.Message = QuotaMessage(out.RetryAfterSeconds)
		out.Details = message
		return out
	}

	if c.predicate()(status, lowered) {
		out.Kind = Retryable
	}
	out.Details = ModelAvailabilityHelp(lowered)
	return out
}

// Network classifies a transport failure, including client timeouts, as
// retryable. Context cancellation is not a provider failure and callers must
// check it before calling Network. The message never carries the request
// URL's key parameter.
func (c *Classifier) Network(err error) *Error {
	msg := "Falha de rede ao chamar o provedor."
	if err != nil {
		msg = "Falha de rede ao chamar o provedor: " + RedactError(err)
	}
	return &Error{Kind: Retryable, Message: msg, Payload: document.EmptyMap()}
}

// NoImage builds the failure recorded when a model answered successfully but
// no image could be extracted or downloaded.
func (c *Classifier) NoImage(model string, payload document.Value) *Error {
	return &Error{
		Kind:    Retryable,
		Status:  http.StatusBadGateway,
		Payload: payload,
		Message: fmt.Sprintf(noImageFormat, model, ExamplePrompt),
		Model:   model,
	}
}

// SafetyBlock returns a Safety error when a successful payload carries a
// safety block, or nil.
func (c *Classifier) SafetyBlock(model string, payload document.Value) *Error {
	details, blocked := ScanSafety(payload)
	if !blocked {
		return nil
	}
	return &Error{
		Kind:    Safety,
		Status:  http.StatusUnprocessableEntity,
		Payload: payload,
		Message: SafetyMessage,
		Details: details,
		Model:   model,
	}
}

// IsCancellation reports whether err stems from the caller's context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ProviderMessage returns error.message from a Google-style error body.
func ProviderMessage(payload document.Value) string {
	if msg, ok := payload.Path("error", "message").Str(); ok {
		return strings.TrimSpace(msg)
	}
	return ""
}

func isQuota(status int, payload document.Value, lowered string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	errNode := payload.Get("error")
	if s, ok := errNode.Get("status").Str(); ok && strings.EqualFold(s, "RESOURCE_EXHAUSTED") {
		return true
	}
	if code, ok := errNode.Get("code").Num(); ok && int(code) == http.StatusTooManyRequests {
		return true
	}
	for _, marker := range quotaMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func (c *Classifier) predicate() FallbackPredicate {
	if c == nil || c.Fallback == nil {
		return DefaultFallbackPredicate
	}
	return c.Fallback
}

func (c *Classifier) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
