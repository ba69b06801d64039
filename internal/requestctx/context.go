package requestctx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const fiberLocalsKey = "requestctx"

// Key is the typed context key used for storing the request Context.
var Key contextKey = "imagend/requestctx"

// Context carries per-request metadata. It never holds the API key itself,
// only a fingerprint usable as a rate-limit or log key.
type Context struct {
	RequestID      string
	KeyFingerprint string
	Origin         string
	StartedAt      time.Time
}

// New builds a request context, generating an id when none is supplied.
func New(requestID, apiKey, origin string) *Context {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Context{
		RequestID:      requestID,
		KeyFingerprint: Fingerprint(apiKey),
		Origin:         origin,
		StartedAt:      time.Now().UTC(),
	}
}

// Fingerprint returns a short stable digest of an API key.
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok
}

// Logger returns the default logger annotated with the request id.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if rc, ok := FromContext(ctx); ok && rc != nil && rc.RequestID != "" {
		logger = logger.With(slog.String("request_id", rc.RequestID))
	}
	return logger
}

// FiberLocalsKey returns the key used in fiber.Locals for request context storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
