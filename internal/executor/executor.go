package executor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pedrolicio/instagram-carousel-generator/internal/app"
	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/fallback"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/prompts"
	"github.com/pedrolicio/instagram-carousel-generator/internal/providers"
	"github.com/pedrolicio/instagram-carousel-generator/internal/requestctx"
)

const maxLoggedPromptChars = 500

// Executor runs generation requests through the fallback chain so both the
// HTTP handlers and the operator tools share one code path.
type Executor struct {
	container    *app.Container
	orchestrator *fallback.Orchestrator
}

func New(container *app.Container) *Executor {
	e := &Executor{container: container}
	var classifier *classify.Classifier
	if container.Factory != nil {
		classifier = container.Factory.Classifier()
	}
	e.orchestrator = fallback.New(fallback.Options{
		Tiers:      container.Tiers,
		Classifier: classifier,
		Resolver:   container.Resolver,
		Observer:   &attemptObserver{container: container, tiers: len(container.Tiers)},
	})
	return e
}

// Chain describes the model tiers in attempt order.
func (e *Executor) Chain() []providers.TierInfo {
	return e.orchestrator.Chain()
}

// apiError wraps an error with an HTTP status code so callers can map it
// directly to responses.
type apiError struct {
	status int
	msg    string
}

func (e apiError) Error() string { return e.msg }

// NewAPIError creates an error tied to an HTTP status code.
func NewAPIError(status int, msg string) error {
	return apiError{status: status, msg: msg}
}

// AsAPIError extracts the HTTP status information when available.
func AsAPIError(err error) (int, string, bool) {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status, apiErr.msg, true
	}
	return 0, "", false
}

// Generate produces a single image.
func (e *Executor) Generate(ctx context.Context, req models.GenerationRequest) (fallback.Result, error) {
	release, err := e.container.AcquireRateLimits(ctx)
	if err != nil {
		return fallback.Result{}, err
	}
	defer release()

	logger := requestctx.Logger(ctx)
	logger.Info("image generation requested",
		slog.String("prompt", truncatePrompt(req.Prompt)),
		slog.Bool("negative_prompt", strings.TrimSpace(req.NegativePrompt) != ""),
	)

	start := time.Now()
	res, err := e.orchestrator.Generate(ctx, req)
	e.recordOutcome(res, err)
	if err != nil {
		logger.Warn("image generation failed", slog.String("error", err.Error()), slog.Duration("elapsed", time.Since(start)))
		return res, err
	}
	logger.Info("image generated",
		slog.String("model", res.Model),
		slog.Int("attempts", len(res.Attempts)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// BatchRequest asks for one image per slide. When Slides is empty,
// SlideCount slides are derived from Prompt.
type BatchRequest struct {
	Prompt         string
	NegativePrompt string
	APIKey         string
	Slides         []models.Slide
	SlideCount     int
	BrandKit       *models.BrandKit
}

// BatchStep is a fallback step tagged with its slide.
type BatchStep struct {
	SlideNumber int `json:"slideNumber"`
	fallback.Step
}

// BatchResult holds the per-slide outcomes ordered by slide number.
type BatchResult struct {
	Images       []models.SlideImage
	Steps        []BatchStep
	FallbackUsed bool
}

// Progress receives the number of finished slides after each slide.
type Progress func(done, total int)

// GenerateSlides runs one fallback chain per slide with at most
// imagen.batch_concurrency slides in flight. A failed slide is recorded and
// does not stop the others, except a quota failure: quota is per account, so
// in-flight slides are cancelled and the remaining ones fail with the same
// error without calling the provider. Cancellation aborts the whole batch.
// When every slide fails, the first slide's error is returned with the result.
func (e *Executor) GenerateSlides(ctx context.Context, batch BatchRequest, progress Progress) (BatchResult, error) {
	slides, err := e.plan(batch)
	if err != nil {
		return BatchResult{}, err
	}

	release, err := e.container.AcquireRateLimits(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	defer release()

	logger := requestctx.Logger(ctx)
	logger.Info("slide batch requested", slog.Int("slides", len(slides)))

	type slideOutcome struct {
		image models.SlideImage
		steps []fallback.Step
		err   error
	}
	outcomes := make([]slideOutcome, len(slides))

	limit := e.container.Config.Imagen.BatchConcurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	slideCtx, stopSlides := context.WithCancel(gctx)
	defer stopSlides()
	var quotaErr atomic.Pointer[classify.Error]

	var mu sync.Mutex
	done := 0
	for i, slide := range slides {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			req := models.GenerationRequest{
				Prompt:         prompts.Slide(slide, batch.BrandKit),
				NegativePrompt: prompts.Negative(slide, batch.NegativePrompt),
				APIKey:         batch.APIKey,
			}
			var (
				res fallback.Result
				err error
			)
			if qe := quotaErr.Load(); qe != nil {
				err = qe
			} else {
				res, err = e.orchestrator.Generate(slideCtx, req)
				switch qe := quotaErr.Load(); {
				case qe != nil && errors.Is(err, fallback.ErrCancelled) && gctx.Err() == nil:
					err = qe
				default:
					e.recordOutcome(res, err)
					if errors.Is(err, fallback.ErrCancelled) {
						return err
					}
					if ce, ok := fallback.AsClassified(err); ok && ce.Kind == classify.Quota && quotaErr.CompareAndSwap(nil, ce) {
						logger.Warn("quota exhausted, skipping remaining slides", slog.Int("slide", slide.SlideNumber))
						stopSlides()
					}
				}
			}

			out := slideOutcome{steps: res.Attempts, err: err}
			out.image = models.SlideImage{SlideNumber: slide.SlideNumber}
			if err != nil {
				out.image.Status = models.SlideStatusFailed
				out.image.Error = userMessage(err)
				logger.Warn("slide generation failed", slog.Int("slide", slide.SlideNumber), slog.String("error", err.Error()))
			} else {
				out.image.Status = models.SlideStatusGenerated
				out.image.ModelUsed = res.Model
				out.image.ImageBase64 = res.Base64
				out.image.FileURI = res.Image.FileURI
			}
			outcomes[i] = out

			mu.Lock()
			done++
			finished := done
			mu.Unlock()
			logger.Info("slide finished", slog.Int("slide", slide.SlideNumber), slog.Int("done", finished), slog.Int("total", len(slides)))
			if progress != nil {
				progress(finished, len(slides))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, fallback.ErrCancelled) {
			return BatchResult{}, err
		}
		return BatchResult{}, fallbackCancelled(ctx, err)
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].image.SlideNumber < outcomes[j].image.SlideNumber
	})

	var result BatchResult
	var firstErr error
	failures := 0
	for _, out := range outcomes {
		result.Images = append(result.Images, out.image)
		for _, step := range out.steps {
			result.Steps = append(result.Steps, BatchStep{SlideNumber: out.image.SlideNumber, Step: step})
		}
		if len(out.steps) > 1 {
			result.FallbackUsed = true
		}
		if out.err != nil {
			failures++
			if firstErr == nil {
				firstErr = out.err
			}
		}
	}
	if failures == len(outcomes) && firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// plan validates the batch and fills in slide numbers.
func (e *Executor) plan(batch BatchRequest) ([]models.Slide, error) {
	slides := append([]models.Slide(nil), batch.Slides...)
	if len(slides) == 0 && batch.SlideCount > 0 {
		if strings.TrimSpace(batch.Prompt) == "" {
			return nil, NewAPIError(fiber.StatusBadRequest, models.ErrPromptRequired.Error())
		}
		for i := 0; i < batch.SlideCount; i++ {
			slides = append(slides, models.Slide{SlideNumber: i + 1, VisualDescription: batch.Prompt})
		}
	}
	if len(slides) == 0 {
		return nil, NewAPIError(fiber.StatusBadRequest, "slides are required")
	}
	if maxSlides := e.container.Config.Imagen.MaxSlides; maxSlides > 0 && len(slides) > maxSlides {
		return nil, NewAPIError(fiber.StatusBadRequest, "too many slides")
	}
	if strings.TrimSpace(batch.APIKey) == "" {
		return nil, models.ErrAPIKeyRequired
	}
	for i := range slides {
		if slides[i].SlideNumber <= 0 {
			slides[i].SlideNumber = i + 1
		}
		if strings.TrimSpace(slides[i].Prompt) == "" && strings.TrimSpace(batch.Prompt) != "" &&
			slides[i].VisualDescription == "" && slides[i].Title == "" {
			slides[i].VisualDescription = batch.Prompt
		}
	}
	return slides, nil
}

func (e *Executor) recordOutcome(res fallback.Result, err error) {
	obs := e.container.Observability
	if obs == nil {
		return
	}
	obs.RecordOutcome(Outcome(err), res.FallbackUsed())
}

// Outcome names the final state of a generation for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return fallback.OutcomeSuccess
	case errors.Is(err, fallback.ErrCancelled):
		return "cancelled"
	case errors.Is(err, fallback.ErrExhausted):
		return "exhausted"
	}
	if ce, ok := fallback.AsClassified(err); ok {
		return ce.Kind.String()
	}
	return "error"
}

func userMessage(err error) string {
	if ce, ok := fallback.AsClassified(err); ok {
		if ce.Details != "" && ce.Kind == classify.Safety {
			return ce.Message + ": " + ce.Details
		}
		return ce.Message
	}
	return err.Error()
}

// fallbackCancelled normalizes a bare context error from the group.
func fallbackCancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(fallback.ErrCancelled, ctxErr)
	}
	return err
}

func truncatePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= maxLoggedPromptChars {
		return prompt
	}
	return string(runes[:maxLoggedPromptChars]) + "…"
}

// attemptObserver turns attempt events into metrics, logs and archived
// payloads.
type attemptObserver struct {
	container *app.Container
	tiers     int
}

func (o *attemptObserver) AttemptStarted(ctx context.Context, attempt models.ModelAttempt) {
	requestctx.Logger(ctx).Debug("model attempt started",
		slog.String("model", attempt.ModelID),
		slog.Int("step", attempt.SequenceIndex+1),
	)
}

func (o *attemptObserver) AttemptFinished(ctx context.Context, attempt models.ModelAttempt, step fallback.Step, elapsed time.Duration) {
	advanced := step.Outcome == classify.Retryable.String() && attempt.SequenceIndex+1 < o.tiers
	o.container.Observability.RecordAttempt(attempt.ModelID, string(attempt.EndpointKind), step.Outcome, step.Status, advanced, elapsed)
}

func (o *attemptObserver) PayloadUnresolved(ctx context.Context, attempt models.ModelAttempt, payload document.Value) {
	logger := requestctx.Logger(ctx)
	archived := false
	if o.container.Archive != nil {
		requestID := ""
		if rc, ok := requestctx.FromContext(ctx); ok && rc != nil {
			requestID = rc.RequestID
		}
		key, err := o.container.Archive.Save(context.WithoutCancel(ctx), requestID, attempt, payload)
		if err != nil {
			logger.Warn("archive unresolved payload", slog.String("error", err.Error()))
		} else {
			archived = true
			logger.Info("unresolved payload archived", slog.String("model", attempt.ModelID), slog.String("key", key))
		}
	}
	o.container.Observability.RecordUnresolved(attempt.ModelID, archived)
}
