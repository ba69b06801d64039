// Package gemini calls Google generative image models over the public REST
// API, supporting both the conversational and the legacy predict shapes.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/requestctx"
)

const (
	defaultBaseURL      = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultAPIKeyHeader = "X-Goog-Api-Key"
	maxResponseBytes    = 64 << 20
)

var tracer = otel.Tracer("imagend/adapters/gemini")

// Options configure the Gemini adapter for one model tier.
type Options struct {
	Model              string
	Endpoint           models.EndpointKind
	BaseURL            string
	URL                string
	APIKeyHeader       string
	HTTPClient         *http.Client
	Timeout            time.Duration
	Defaults           config.GenerationDefaults
	ResponseModalities []string
	Classifier         *classify.Classifier
}

// Adapter invokes one model endpoint.
type Adapter struct {
	client     *http.Client
	model      string
	endpoint   models.EndpointKind
	baseURL    string
	url        string
	keyHeader  string
	defaults   config.GenerationDefaults
	modalities []string
	classifier *classify.Classifier
}

// New creates a Gemini adapter.
func New(opts Options) (*Adapter, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" && strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("gemini: model id required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = models.EndpointConversational
	}
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	header := strings.TrimSpace(opts.APIKeyHeader)
	if header == "" {
		header = defaultAPIKeyHeader
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.New(nil)
	}
	return &Adapter{
		client:     client,
		model:      model,
		endpoint:   endpoint,
		baseURL:    strings.TrimSuffix(base, "/"),
		url:        strings.TrimSpace(opts.URL),
		keyHeader:  header,
		defaults:   opts.Defaults,
		modalities: opts.ResponseModalities,
		classifier: classifier,
	}, nil
}

// Model returns the model id this adapter targets.
func (a *Adapter) Model() string { return a.model }

// Endpoint returns the request shape this adapter speaks.
func (a *Adapter) Endpoint() models.EndpointKind { return a.endpoint }

// Call sends one generation request. A non-2xx answer yields a
// *classify.Error; a cancelled context yields the context error unchanged.
func (a *Adapter) Call(ctx context.Context, attempt models.ModelAttempt, req models.GenerationRequest) (document.Value, error) {
	model := attempt.ModelID
	if model == "" {
		model = a.model
	}
	kind := attempt.EndpointKind
	if kind == "" {
		kind = a.endpoint
	}

	ctx, span := tracer.Start(ctx, "gemini.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("gen_ai.request.model", model),
		attribute.String("imagend.endpoint_kind", string(kind)),
		attribute.Int("imagend.sequence_index", attempt.SequenceIndex),
	)

	var payload any
	switch kind {
	case models.EndpointLegacyPredict:
		payload = buildPredictRequest(req, a.defaults)
	default:
		payload = buildGenerateContentRequest(req, a.modalities)
	}

	endpoint, err := a.endpointURL(model, kind, req.APIKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return document.Value{}, err
	}

	requestctx.Logger(ctx).Debug("gemini request",
		"model", model,
		"endpoint_kind", string(kind),
		"step", attempt.SequenceIndex,
	)

	resp, err := a.post(ctx, endpoint, req.APIKey, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, "cancelled")
			return document.Value{}, ctxErr
		}
		var classified *classify.Error
		if !errors.As(err, &classified) {
			classified = a.classifier.Network(err)
		}
		classified.Model = model
		span.SetStatus(codes.Error, classified.Message)
		return document.Value{}, classified
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return document.Value{}, ctxErr
		}
		classified := a.classifier.Network(fmt.Errorf("read response: %w", err))
		classified.Model = model
		return document.Value{}, classified
	}
	doc := document.ParseObject(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		classified := a.classifier.Classify(resp.StatusCode, doc, "", resp.Header)
		classified.Model = model
		span.SetStatus(codes.Error, classified.Message)
		return document.Value{}, classified
	}
	return doc, nil
}

// endpointURL resolves <base>/<model>:<verb> and sets the key query
// parameter. Keys are sent in the query and in a header because different
// provider versions read one or the other.
func (a *Adapter) endpointURL(model string, kind models.EndpointKind, apiKey string) (string, error) {
	raw := a.url
	if raw == "" {
		raw = a.baseURL + "/" + strings.TrimPrefix(model, "models/") + kind.Suffix()
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("gemini: invalid endpoint %q: %w", raw, err)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("key", apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (a *Adapter) post(ctx context.Context, endpoint, apiKey string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(a.keyHeader, apiKey)
	}
	return a.client.Do(req)
}
