// Package blob stores opaque objects on local disk or S3, optionally sealed
// with AES-GCM before they leave the process.
package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
)

var ErrNotFound = errors.New("blob not found")

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
	Encrypted   bool
}

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// New builds the store selected by archive.storage.
func New(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	var (
		backend Store
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Storage)) {
	case "s3":
		backend, err = NewS3(ctx, cfg.S3)
	default:
		backend, err = NewLocal(cfg.Local.Directory)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(backend, cfg.EncryptionKey)
}

// Wrap seals objects written to backend when key is non-empty. The key is
// base64 of 16, 24 or 32 bytes. Sealed objects read back without a key are
// an error rather than ciphertext.
func Wrap(backend Store, key string) (Store, error) {
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &sealedStore{backend: backend, sealer: s}, nil
}

type sealedStore struct {
	backend Store
	sealer  *sealer
}

func (s *sealedStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error) {
	if s.sealer == nil {
		return s.backend.Put(ctx, key, body, opts)
	}
	plain, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, err
	}
	sealed, err := s.sealer.seal(key, plain)
	if err != nil {
		return ObjectInfo{}, err
	}
	opts.Metadata = withMetadata(opts.Metadata, encryptionMetadataKey, encryptionMethod)
	info, err := s.backend.Put(ctx, key, bytes.NewReader(sealed), opts)
	if err != nil {
		return ObjectInfo{}, err
	}
	info.Size = int64(len(plain))
	info.Encrypted = true
	return info, nil
}

func (s *sealedStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	reader, info, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	if _, sealed := info.Metadata[encryptionMetadataKey]; !sealed {
		return reader, info, nil
	}
	defer reader.Close()
	if s.sealer == nil {
		return nil, ObjectInfo{}, errors.New("blob is encrypted but archive.encryption_key is not set")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	plain, err := s.sealer.open(key, data)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	info.Size = int64(len(plain))
	info.Encrypted = true
	return io.NopCloser(bytes.NewReader(plain)), info, nil
}

func (s *sealedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

func withMetadata(meta map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}
