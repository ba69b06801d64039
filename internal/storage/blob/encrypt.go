package blob

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	encryptionMetadataKey = "blob-encryption"
	encryptionMethod      = "aes-gcm-v1"

	sealVersion byte = 1
)

var errSealedTooShort = errors.New("sealed blob too short")

// sealer encrypts whole objects with AES-GCM. The object key is bound as
// additional data, so a sealed blob copied under another key fails to open.
// Layout: version byte, nonce, ciphertext.
type sealer struct {
	aead cipher.AEAD
}

// newSealer returns nil when raw is empty.
func newSealer(raw string) (*sealer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("archive.encryption_key must be base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("archive.encryption_key must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(objectKey string, plain []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plain)+s.aead.Overhead())
	out[0] = sealVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	return s.aead.Seal(out, out[1:], plain, []byte(objectKey)), nil
}

func (s *sealer) open(objectKey string, sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < 1+nonceSize {
		return nil, errSealedTooShort
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported sealed blob version %d", sealed[0])
	}
	nonce := sealed[1 : 1+nonceSize]
	plain, err := s.aead.Open(nil, nonce, sealed[1+nonceSize:], []byte(objectKey))
	if err != nil {
		return nil, fmt.Errorf("open sealed blob %s: %w", objectKey, err)
	}
	return plain, nil
}
