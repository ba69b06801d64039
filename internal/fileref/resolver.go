// Package fileref downloads images that providers return as file URIs and
// re-encodes them as base64.
package fileref

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/requestctx"
)

// ChunkSize is the number of raw bytes fed to the encoder per write.
const ChunkSize = 32 * 1024

const defaultMaxBytes = 20 << 20

// Options configure a Resolver.
type Options struct {
	HTTPClient   *http.Client
	Timeout      time.Duration
	APIKeyHeader string
	MaxBytes     int64
	// AllowInsecure permits http:// URIs. Tests use it with httptest servers.
	AllowInsecure bool
}

// Resolver fetches file URIs with the caller's API key.
type Resolver struct {
	client        *http.Client
	keyHeader     string
	maxBytes      int64
	allowInsecure bool
}

func New(opts Options) *Resolver {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	header := strings.TrimSpace(opts.APIKeyHeader)
	if header == "" {
		header = "X-Goog-Api-Key"
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Resolver{client: client, keyHeader: header, maxBytes: maxBytes, allowInsecure: opts.AllowInsecure}
}

// Resolve downloads uri and returns its bytes as base64. Every failure,
// including a cancelled context, yields "" so one broken download only
// costs one image.
func (r *Resolver) Resolve(ctx context.Context, uri, apiKey string) string {
	logger := requestctx.Logger(ctx)
	target, err := r.authorize(uri, apiKey)
	if err != nil {
		logger.Warn("file uri rejected", "error", classify.RedactError(err))
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		logger.Warn("file uri request", "error", classify.RedactError(err))
		return ""
	}
	if apiKey != "" {
		req.Header.Set(r.keyHeader, apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Warn("file uri download failed", "error", classify.RedactError(err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("file uri download status", "status", resp.StatusCode)
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		logger.Warn("file uri read failed", "error", classify.RedactError(err))
		return ""
	}
	if int64(len(data)) > r.maxBytes {
		logger.Warn("file uri exceeds download limit", "limit_bytes", r.maxBytes)
		return ""
	}
	if len(data) == 0 {
		logger.Warn("file uri returned an empty body")
		return ""
	}
	return EncodeChunked(data)
}

// authorize validates the URI and appends the key query parameter when the
// URI does not already carry one.
func (r *Resolver) authorize(uri, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return "", fmt.Errorf("parse file uri: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !r.allowInsecure {
			return "", fmt.Errorf("file uri must use https")
		}
	default:
		return "", fmt.Errorf("unsupported file uri scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("file uri has no host")
	}
	if apiKey != "" {
		q := u.Query()
		if q.Get("key") == "" {
			q.Set("key", apiKey)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// EncodeChunked base64-encodes data ChunkSize bytes at a time through a
// streaming encoder, which carries partial groups across chunk boundaries.
// The output is identical to a single-shot standard encoding.
func EncodeChunked(data []byte) string {
	var buf strings.Builder
	buf.Grow(base64.StdEncoding.EncodedLen(len(data)))
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	for start := 0; start < len(data); start += ChunkSize {
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		_, _ = enc.Write(data[start:end])
	}
	_ = enc.Close()
	return buf.String()
}
