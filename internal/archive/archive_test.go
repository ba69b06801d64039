package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/storage/blob"
)

func TestKey(t *testing.T) {
	attempt := models.ModelAttempt{ModelID: "publishers/google/imagen-4.0", SequenceIndex: 2}
	require.Equal(t, "unresolved/req-9/2-publishers_google_imagen-4.0.json", Key("req-9", attempt))
	require.Equal(t, "unresolved/anonymous/0-m.json", Key("", models.ModelAttempt{ModelID: "m"}))
}

func TestSaveAndLoad(t *testing.T) {
	store, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	a := New(store)

	payload := document.ParseObject([]byte(`{"candidates":[{"content":{"parts":[{"text":"sem imagem"}]}}]}`))
	attempt := models.ModelAttempt{ModelID: "gemini-2.5-flash-image", EndpointKind: models.EndpointConversational}

	key, err := a.Save(context.Background(), "req-1", attempt, payload)
	require.NoError(t, err)
	require.Equal(t, "unresolved/req-1/0-gemini-2.5-flash-image.json", key)

	got, err := a.Load(context.Background(), key)
	require.NoError(t, err)
	text, ok := got.Path("candidates").Index(0).Path("content", "parts").Index(0).Get("text").Str()
	require.True(t, ok)
	require.Equal(t, "sem imagem", text)
}

func TestNilArchiveIsNoop(t *testing.T) {
	var a *Archive
	key, err := a.Save(context.Background(), "r", models.ModelAttempt{}, document.EmptyMap())
	require.NoError(t, err)
	require.Empty(t, key)
}

func TestListByRequest(t *testing.T) {
	store, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	a := New(store)
	ctx := context.Background()

	for _, tc := range []struct {
		request string
		seq     int
	}{{"req-1", 1}, {"req-1", 0}, {"req-10", 0}} {
		_, err := a.Save(ctx, tc.request, models.ModelAttempt{ModelID: "m", SequenceIndex: tc.seq}, document.EmptyMap())
		require.NoError(t, err)
	}

	keys, err := a.List(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, []string{"unresolved/req-1/0-m.json", "unresolved/req-1/1-m.json"}, keys)

	all, err := a.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}
