// Package archive keeps provider payloads that answered successfully but
// carried no usable image, so new response shapes can be inspected later.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/storage/blob"
)

const (
	keyPrefix   = "unresolved"
	contentType = "application/json"
)

// Archive writes payload documents to a blob store.
type Archive struct {
	store blob.Store
}

func New(store blob.Store) *Archive {
	return &Archive{store: store}
}

// Key returns unresolved/<requestID>/<seq>-<model>.json.
func Key(requestID string, attempt models.ModelAttempt) string {
	model := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(attempt.ModelID)
	if requestID == "" {
		requestID = "anonymous"
	}
	return fmt.Sprintf("%s/%s/%d-%s.json", keyPrefix, requestID, attempt.SequenceIndex, model)
}

// Save stores payload and returns its key.
func (a *Archive) Save(ctx context.Context, requestID string, attempt models.ModelAttempt, payload document.Value) (string, error) {
	if a == nil || a.store == nil {
		return "", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	key := Key(requestID, attempt)
	_, err = a.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"model":    attempt.ModelID,
			"endpoint": string(attempt.EndpointKind),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive payload %s: %w", key, err)
	}
	return key, nil
}

// List returns the archived keys for a request in key order. An empty
// requestID lists every archived payload.
func (a *Archive) List(ctx context.Context, requestID string) ([]string, error) {
	prefix := keyPrefix + "/"
	if requestID != "" {
		prefix += requestID + "/"
	}
	return a.store.List(ctx, prefix)
}

// Load reads an archived payload back as a document.
func (a *Archive) Load(ctx context.Context, key string) (document.Value, error) {
	rc, _, err := a.store.Get(ctx, key)
	if err != nil {
		return document.Value{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return document.Value{}, err
	}
	return document.Parse(data)
}
