package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), config.ArchiveConfig{Storage: "local", Local: config.ArchiveLocalConfig{Directory: dir}})
	require.NoError(t, err)

	info, err := store.Put(context.Background(), "unresolved/req-1/0-model.json", bytes.NewReader([]byte(`{"a":1}`)), PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	require.Equal(t, int64(7), info.Size)
	require.False(t, info.Encrypted)

	rc, got, err := store.Get(context.Background(), "unresolved/req-1/0-model.json")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(body))
	require.Equal(t, "application/json", got.ContentType)
}

func TestEncryptedStoreSealsAtRest(t *testing.T) {
	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	store, err := New(context.Background(), config.ArchiveConfig{Storage: "local", EncryptionKey: key, Local: config.ArchiveLocalConfig{Directory: dir}})
	require.NoError(t, err)

	plain := []byte(`{"candidates":[]}`)
	info, err := store.Put(context.Background(), "p.json", bytes.NewReader(plain), PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	require.True(t, info.Encrypted)

	raw, err := os.ReadFile(filepath.Join(dir, "p.json"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "candidates")

	rc, got, err := store.Get(context.Background(), "p.json")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, plain, body)
	require.True(t, got.Encrypted)
}

func TestEncryptedBlobWithoutKeyFails(t *testing.T) {
	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 16))
	sealed, err := New(context.Background(), config.ArchiveConfig{EncryptionKey: key, Local: config.ArchiveLocalConfig{Directory: dir}})
	require.NoError(t, err)
	_, err = sealed.Put(context.Background(), "x.json", bytes.NewReader([]byte("{}")), PutOptions{})
	require.NoError(t, err)

	plain, err := NewLocal(dir)
	require.NoError(t, err)
	wrapped, err := Wrap(plain, "")
	require.NoError(t, err)
	_, _, err = wrapped.Get(context.Background(), "x.json")
	require.Error(t, err)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../outside.json", bytes.NewReader(nil), PutOptions{})
	require.Error(t, err)

	_, _, err = store.Get(context.Background(), "missing.json")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidEncryptionKey(t *testing.T) {
	_, err := Wrap(nil, "not-base64!")
	require.Error(t, err)
	_, err = Wrap(nil, base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
}

func TestSealedBlobIsBoundToItsKey(t *testing.T) {
	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{9}, 32))
	store, err := New(context.Background(), config.ArchiveConfig{EncryptionKey: key, Local: config.ArchiveLocalConfig{Directory: dir}})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "a.json", bytes.NewReader([]byte(`{"a":1}`)), PutOptions{})
	require.NoError(t, err)

	for _, suffix := range []string{"", ".meta"} {
		data, err := os.ReadFile(filepath.Join(dir, "a.json"+suffix))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"+suffix), data, 0o640))
	}

	_, _, err = store.Get(context.Background(), "b.json")
	require.Error(t, err)
}

func TestLocalStoreList(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"unresolved/req-2/0-m.json", "unresolved/req-1/1-m.json", "unresolved/req-1/0-m.json", "other.json"} {
		_, err := store.Put(context.Background(), key, bytes.NewReader([]byte("{}")), PutOptions{})
		require.NoError(t, err)
	}

	keys, err := store.List(context.Background(), "unresolved/req-1/")
	require.NoError(t, err)
	require.Equal(t, []string{"unresolved/req-1/0-m.json", "unresolved/req-1/1-m.json"}, keys)

	all, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 4)
}
