package fallback

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pedrolicio/instagram-carousel-generator/internal/adapters/gemini"
	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/fileref"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/providers"
)

var testRequest = models.GenerationRequest{Prompt: "a red circle", APIKey: "test-key"}

type stubTier struct {
	calls   atomic.Int32
	payload string
	err     error
}

func (s *stubTier) Call(ctx context.Context, attempt models.ModelAttempt, req models.GenerationRequest) (document.Value, error) {
	s.calls.Add(1)
	if s.err != nil {
		return document.Value{}, s.err
	}
	return document.ParseObject([]byte(s.payload)), nil
}

func chain(callers ...providers.ImageCaller) []providers.Tier {
	names := []string{"gemini-2.5-flash-image", "imagen-4.0-generate-001", "imagen-4.0-ultra-generate-001", "extra-tier"}
	tiers := make([]providers.Tier, len(callers))
	for i, c := range callers {
		kind := models.EndpointLegacyPredict
		if i == 0 {
			kind = models.EndpointConversational
		}
		tiers[i] = providers.Tier{
			Attempt: models.ModelAttempt{ModelID: names[i], EndpointKind: kind, SequenceIndex: i},
			Caller:  c,
		}
	}
	return tiers
}

func retryable(msg string) error {
	return &classify.Error{Kind: classify.Retryable, Status: http.StatusNotFound, Message: msg}
}

func TestGenerateFirstTierSuccess(t *testing.T) {
	first := &stubTier{payload: `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QUJD"}}]}}]}`}
	second := &stubTier{payload: `{}`}

	res, err := New(Options{Tiers: chain(first, second)}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, "QUJD", res.Base64)
	require.Equal(t, "gemini-2.5-flash-image", res.Model)
	require.False(t, res.FallbackUsed())
	require.Equal(t, int32(0), second.calls.Load())
}

func TestGenerateSafetyShortCircuits(t *testing.T) {
	first := &stubTier{err: &classify.Error{Kind: classify.Safety, Status: http.StatusBadRequest, Message: classify.SafetyMessage}}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}

	res, err := New(Options{Tiers: chain(first, second)}).Generate(context.Background(), testRequest)
	require.Error(t, err)
	ce, ok := AsClassified(err)
	require.True(t, ok)
	require.Equal(t, classify.Safety, ce.Kind)
	require.Equal(t, int32(1), first.calls.Load())
	require.Equal(t, int32(0), second.calls.Load())
	require.Len(t, res.Attempts, 1)
}

func TestGenerateSafetyBlockInSuccessfulPayload(t *testing.T) {
	first := &stubTier{payload: `{"promptFeedback":{"blockReason":"SAFETY"},"candidates":[{"finishReason":"SAFETY","safetyRatings":[{"category":"HARM_CATEGORY_DANGEROUS_CONTENT","probability":"HIGH","blocked":true}]}]}`}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}

	_, err := New(Options{Tiers: chain(first, second)}).Generate(context.Background(), testRequest)
	ce, ok := AsClassified(err)
	require.True(t, ok)
	require.Equal(t, classify.Safety, ce.Kind)
	require.Equal(t, http.StatusUnprocessableEntity, ce.Status)
	require.Contains(t, ce.Details, "dangerous content")
	require.Equal(t, int32(0), second.calls.Load())
}

func TestGenerateExhaustionKeepsFullChain(t *testing.T) {
	first := &stubTier{err: retryable("model not found")}
	second := &stubTier{err: retryable("predict is deprecated")}
	third := &stubTier{payload: `{"candidates":[{"content":{"parts":[{"text":"sem imagem"}]}}]}`}

	res, err := New(Options{Tiers: chain(first, second, third)}).Generate(context.Background(), testRequest)
	require.ErrorIs(t, err, ErrExhausted)
	ce, ok := AsClassified(err)
	require.True(t, ok)

	links := ce.Chain()
	require.Len(t, links, 3)
	require.Equal(t, "gemini-2.5-flash-image", links[0].Model)
	require.Equal(t, "imagen-4.0-generate-001", links[1].Model)
	require.Equal(t, "imagen-4.0-ultra-generate-001", links[2].Model)
	require.Equal(t, http.StatusBadGateway, links[2].Status)
	require.Len(t, res.Attempts, 3)
	for _, tier := range []*stubTier{first, second, third} {
		require.Equal(t, int32(1), tier.calls.Load())
	}
}

func TestGenerateQuotaIsTerminalEvenOn500(t *testing.T) {
	classifier := classify.New(nil)
	quota := classifier.Classify(http.StatusInternalServerError, document.EmptyMap(), "Quota exceeded for imagen-4.0", nil)
	require.Equal(t, classify.Quota, quota.Kind)

	first := &stubTier{err: quota}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}

	_, err := New(Options{Tiers: chain(first, second), Classifier: classifier}).Generate(context.Background(), testRequest)
	ce, ok := AsClassified(err)
	require.True(t, ok)
	require.Equal(t, classify.Quota, ce.Kind)
	require.NotErrorIs(t, err, ErrExhausted)
	require.Equal(t, int32(0), second.calls.Load())
}

func TestGenerateFatalStopsChain(t *testing.T) {
	first := &stubTier{err: &classify.Error{Kind: classify.Fatal, Status: http.StatusBadRequest, Message: "API key not valid"}}
	second := &stubTier{payload: `{}`}

	_, err := New(Options{Tiers: chain(first, second)}).Generate(context.Background(), testRequest)
	ce, ok := AsClassified(err)
	require.True(t, ok)
	require.Equal(t, classify.Fatal, ce.Kind)
	require.Equal(t, int32(0), second.calls.Load())
}

func TestGenerateAdvancesAfterRetryable(t *testing.T) {
	first := &stubTier{err: retryable("models/gemini-2.5-flash-image is not found")}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"UFJFRA=="}]}`}

	res, err := New(Options{Tiers: chain(first, second)}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, "UFJFRA==", res.Base64)
	require.Equal(t, "imagen-4.0-generate-001", res.Model)
	require.True(t, res.FallbackUsed())
	require.Equal(t, "retryable", res.Attempts[0].Outcome)
	require.Equal(t, OutcomeSuccess, res.Attempts[1].Outcome)
}

func TestGenerateUnclassifiedErrorIsRetryable(t *testing.T) {
	first := &stubTier{err: errors.New("connection reset by peer")}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}

	res, err := New(Options{Tiers: chain(first, second)}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, "QUJD", res.Base64)
	require.Equal(t, 0, res.Attempts[0].Status)
}

func TestGenerateRoundTripThroughAdapter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QUJD"}}]}}]}`))
	}))
	defer srv.Close()

	adapter, err := gemini.New(gemini.Options{Model: "gemini-2.5-flash-image", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	fallbackTier := &stubTier{payload: `{}`}

	res, err := New(Options{Tiers: chain(adapter, fallbackTier)}).Generate(context.Background(), models.GenerationRequest{Prompt: "a red circle", APIKey: "k"})
	require.NoError(t, err)
	require.Equal(t, "QUJD", res.Base64)
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, int32(0), fallbackTier.calls.Load())
}

func TestGenerateResolvesFileURI(t *testing.T) {
	var gotKey string
	download := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		_, _ = w.Write([]byte{0x41, 0x42, 0x43})
	}))
	defer download.Close()

	first := &stubTier{payload: `{"candidates":[{"content":{"parts":[{"fileData":{"fileUri":"` + download.URL + `/img"}}]}}]}`}
	resolver := fileref.New(fileref.Options{HTTPClient: download.Client(), AllowInsecure: true})

	res, err := New(Options{Tiers: chain(first), Resolver: resolver}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, "QUJD", res.Base64)
	require.Equal(t, download.URL+"/img", res.Image.FileURI)
	require.Equal(t, "test-key", gotKey)
}

func TestGenerateFailedDownloadAdvances(t *testing.T) {
	download := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer download.Close()

	first := &stubTier{payload: `{"candidates":[{"content":{"parts":[{"fileData":{"fileUri":"` + download.URL + `/img"}}]}}]}`}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}
	resolver := fileref.New(fileref.Options{HTTPClient: download.Client(), AllowInsecure: true})

	res, err := New(Options{Tiers: chain(first, second), Resolver: resolver}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, "imagen-4.0-generate-001", res.Model)
	require.Equal(t, http.StatusBadGateway, res.Attempts[0].Status)
}

func TestGenerateCitationLinksAreNotImages(t *testing.T) {
	var cited atomic.Int32
	thirdParty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cited.Add(1)
		_, _ = w.Write([]byte("<html>article</html>"))
	}))
	defer thirdParty.Close()

	first := &stubTier{payload: `{"candidates":[{"content":{"parts":[{"text":"segue o texto"}]},` +
		`"citationMetadata":{"citationSources":[{"uri":"` + thirdParty.URL + `/article"}]},` +
		`"groundingMetadata":{"groundingChunks":[{"web":{"uri":"` + thirdParty.URL + `/source"}}]}}]}`}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}
	resolver := fileref.New(fileref.Options{HTTPClient: thirdParty.Client(), AllowInsecure: true})

	res, err := New(Options{Tiers: chain(first, second), Resolver: resolver}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, "imagen-4.0-generate-001", res.Model)
	require.Equal(t, "QUJD", res.Base64)
	require.Equal(t, http.StatusBadGateway, res.Attempts[0].Status)
	require.Equal(t, int32(0), cited.Load())
}

func TestGenerateKeepsEveryPredictSample(t *testing.T) {
	first := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"},{"bytesBase64Encoded":"REVG"},{"bytesBase64Encoded":"QUJD"}]}`}

	res, err := New(Options{Tiers: chain(first)}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, "QUJD", res.Base64)
	require.Equal(t, []string{"REVG"}, res.Extra)
}

func TestGenerateCancelledBeforeFirstCall(t *testing.T) {
	first := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{Tiers: chain(first)}).Generate(ctx, testRequest)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	_, classified := AsClassified(err)
	require.False(t, classified)
	require.Equal(t, int32(0), first.calls.Load())
}

func TestGenerateCancelledDuringCall(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	adapter, err := gemini.New(gemini.Options{Model: "gemini-2.5-flash-image", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	second := &stubTier{payload: `{}`}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err = New(Options{Tiers: chain(adapter, second)}).Generate(ctx, testRequest)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, int32(0), second.calls.Load())
}

func TestGenerateValidatesRequest(t *testing.T) {
	o := New(Options{Tiers: chain(&stubTier{payload: `{}`})})

	_, err := o.Generate(context.Background(), models.GenerationRequest{Prompt: "  ", APIKey: "k"})
	require.ErrorIs(t, err, models.ErrPromptRequired)

	_, err = o.Generate(context.Background(), models.GenerationRequest{Prompt: "x"})
	require.ErrorIs(t, err, models.ErrAPIKeyRequired)

	_, err = New(Options{}).Generate(context.Background(), testRequest)
	require.ErrorIs(t, err, ErrNoTiers)
}

type recordingObserver struct {
	mu         sync.Mutex
	started    []string
	steps      []Step
	unresolved []string
}

func (r *recordingObserver) AttemptStarted(_ context.Context, attempt models.ModelAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, attempt.ModelID)
}

func (r *recordingObserver) AttemptFinished(_ context.Context, _ models.ModelAttempt, step Step, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recordingObserver) PayloadUnresolved(_ context.Context, attempt models.ModelAttempt, _ document.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved = append(r.unresolved, attempt.ModelID)
}

func TestGenerateNotifiesObserver(t *testing.T) {
	first := &stubTier{payload: `{"candidates":[{"content":{"parts":[{"text":"no image"}]}}]}`}
	second := &stubTier{payload: `{"predictions":[{"bytesBase64Encoded":"QUJD"}]}`}
	obs := &recordingObserver{}

	_, err := New(Options{Tiers: chain(first, second), Observer: obs}).Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, []string{"gemini-2.5-flash-image", "imagen-4.0-generate-001"}, obs.started)
	require.Equal(t, []string{"gemini-2.5-flash-image"}, obs.unresolved)
	require.Len(t, obs.steps, 2)
	require.Equal(t, "retryable", obs.steps[0].Outcome)
}

func TestChainDescribesTiers(t *testing.T) {
	o := New(Options{Tiers: chain(&stubTier{}, &stubTier{}, &stubTier{})})
	info := o.Chain()
	require.Len(t, info, 3)
	require.Equal(t, "imagen-4.0-ultra-generate-001", info[2].Model)
	require.Equal(t, 2, info[2].Sequence)
}
