// Package fallback runs one generation request through the fixed chain of
// model tiers until a tier yields an image or a terminal error occurs.
package fallback

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/extract"
	"github.com/pedrolicio/instagram-carousel-generator/internal/fileref"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/providers"
	"github.com/pedrolicio/instagram-carousel-generator/internal/requestctx"
)

// OutcomeSuccess is the Step outcome of the tier that produced the image.
const OutcomeSuccess = "success"

// Step records one attempted tier.
type Step struct {
	Model        string              `json:"model"`
	EndpointKind models.EndpointKind `json:"endpoint"`
	Status       int                 `json:"status,omitempty"`
	Outcome      string              `json:"outcome"`
	Message      string              `json:"message,omitempty"`
}

// Result is a successful generation. Base64 always holds the image bytes,
// downloaded when the provider only returned a file URI.
type Result struct {
	Image    models.ExtractedImage
	Base64   string
	Model    string
	Attempts []Step
	// Extra holds further samples of the same payload, in payload order,
	// when the tier returned more than one image.
	Extra []string
}

// FallbackUsed reports whether any tier before the successful one failed.
func (r Result) FallbackUsed() bool {
	return len(r.Attempts) > 1
}

// Observer receives attempt lifecycle events. Implementations must be safe
// for concurrent use.
type Observer interface {
	AttemptStarted(ctx context.Context, attempt models.ModelAttempt)
	AttemptFinished(ctx context.Context, attempt models.ModelAttempt, step Step, elapsed time.Duration)
	PayloadUnresolved(ctx context.Context, attempt models.ModelAttempt, payload document.Value)
}

type nopObserver struct{}

func (nopObserver) AttemptStarted(context.Context, models.ModelAttempt) {}
func (nopObserver) AttemptFinished(context.Context, models.ModelAttempt, Step, time.Duration) {
}
func (nopObserver) PayloadUnresolved(context.Context, models.ModelAttempt, document.Value) {}

// Options configure an Orchestrator.
type Options struct {
	Tiers      []providers.Tier
	Classifier *classify.Classifier
	Resolver   *fileref.Resolver
	Observer   Observer
}

// Orchestrator walks the tier chain sequentially. It holds no per-request
// state and may be shared across goroutines.
type Orchestrator struct {
	tiers      []providers.Tier
	classifier *classify.Classifier
	resolver   *fileref.Resolver
	observer   Observer
}

// New creates an orchestrator over a copy of the given tiers.
func New(opts Options) *Orchestrator {
	tiers := make([]providers.Tier, len(opts.Tiers))
	copy(tiers, opts.Tiers)
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.New(nil)
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = fileref.New(fileref.Options{})
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		tiers:      tiers,
		classifier: classifier,
		resolver:   resolver,
		observer:   observer,
	}
}

// Chain describes the configured tiers in attempt order.
func (o *Orchestrator) Chain() []providers.TierInfo {
	return providers.Describe(o.tiers)
}

// Generate produces one image. Safety, quota and fatal failures stop the
// chain at once; retryable failures advance to the next tier with the
// previous error linked as cause. The returned Result carries the attempted
// steps even when err is non-nil.
func (o *Orchestrator) Generate(ctx context.Context, req models.GenerationRequest) (Result, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if len(o.tiers) == 0 {
		return Result{}, ErrNoTiers
	}
	logger := requestctx.Logger(ctx)

	var result Result
	var prev *classify.Error
	for i, tier := range o.tiers {
		if err := ctx.Err(); err != nil {
			return result, cancelled(err)
		}
		attempt := tier.Attempt
		o.observer.AttemptStarted(ctx, attempt)
		start := time.Now()

		got, cerr, err := o.attempt(ctx, tier, req)
		elapsed := time.Since(start)
		if err != nil {
			return result, cancelled(err)
		}

		if cerr == nil {
			step := Step{
				Model:        attempt.ModelID,
				EndpointKind: attempt.EndpointKind,
				Status:       http.StatusOK,
				Outcome:      OutcomeSuccess,
			}
			result.Attempts = append(result.Attempts, step)
			o.observer.AttemptFinished(ctx, attempt, step, elapsed)
			result.Image = got.image
			result.Base64 = got.base64
			result.Extra = got.extra
			result.Model = attempt.ModelID
			if i > 0 {
				logger.Info("image generated after fallback", "model", attempt.ModelID, "step", i+1)
			}
			return result, nil
		}

		if cerr.Model == "" {
			cerr.Model = attempt.ModelID
		}
		cerr = cerr.WithCause(prev)
		step := Step{
			Model:        attempt.ModelID,
			EndpointKind: attempt.EndpointKind,
			Status:       cerr.Status,
			Outcome:      cerr.Kind.String(),
			Message:      cerr.Message,
		}
		result.Attempts = append(result.Attempts, step)
		o.observer.AttemptFinished(ctx, attempt, step, elapsed)

		if cerr.Terminal() {
			logger.Warn("model attempt failed", "model", attempt.ModelID, "step", i+1, "kind", cerr.Kind.String(), "status", cerr.Status)
			return result, cerr
		}
		prev = cerr
		if i+1 < len(o.tiers) {
			logger.Warn("model attempt failed, trying next tier",
				"model", attempt.ModelID,
				"next_model", o.tiers[i+1].Attempt.ModelID,
				"step", i+1,
				"status", cerr.Status,
				"error", cerr.Message,
			)
		}
	}

	logger.Error("all model tiers failed", "attempts", len(result.Attempts))
	return result, &ExhaustedError{Last: prev}
}

type attemptImage struct {
	image  models.ExtractedImage
	base64 string
	extra  []string
}

// attempt runs one tier. A non-nil error means the context was cancelled;
// every provider failure is reported as a classified error.
func (o *Orchestrator) attempt(ctx context.Context, tier providers.Tier, req models.GenerationRequest) (attemptImage, *classify.Error, error) {
	model := tier.Attempt.ModelID
	payload, err := tier.Caller.Call(ctx, tier.Attempt, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptImage{}, nil, ctxErr
		}
		if classify.IsCancellation(err) {
			return attemptImage{}, nil, err
		}
		var cerr *classify.Error
		if errors.As(err, &cerr) && cerr != nil {
			return attemptImage{}, cerr, nil
		}
		cerr = o.classifier.Network(err)
		cerr.Model = model
		return attemptImage{}, cerr, nil
	}

	if blocked := o.classifier.SafetyBlock(model, payload); blocked != nil {
		return attemptImage{}, blocked, nil
	}

	images := extract.ExtractAllImages(payload)
	if len(images) == 0 {
		o.observer.PayloadUnresolved(ctx, tier.Attempt, payload)
		return attemptImage{}, o.classifier.NoImage(model, payload), nil
	}
	b64, err := o.materialize(ctx, images[0], req.APIKey)
	if err != nil {
		return attemptImage{}, nil, err
	}
	if b64 == "" {
		return attemptImage{}, o.classifier.NoImage(model, payload), nil
	}

	out := attemptImage{image: images[0], base64: b64}
	for _, img := range images[1:] {
		extra, err := o.materialize(ctx, img, req.APIKey)
		if err != nil {
			return attemptImage{}, nil, err
		}
		if extra != "" {
			out.extra = append(out.extra, extra)
		}
	}
	return out, nil, nil
}

// materialize returns the image as base64, downloading file references. An
// empty string means the download failed; a non-nil error is cancellation.
func (o *Orchestrator) materialize(ctx context.Context, img models.ExtractedImage, apiKey string) (string, error) {
	if img.Base64 != "" {
		return img.Base64, nil
	}
	b64 := o.resolver.Resolve(ctx, img.FileURI, apiKey)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b64, nil
}
