package public

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pedrolicio/instagram-carousel-generator/internal/app"
	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/executor"
	"github.com/pedrolicio/instagram-carousel-generator/internal/httpserver/httputil"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/requestctx"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	msgInvalidBody     = "Corpo da requisição inválido."
	msgAPIKeyRequired  = "A API Key é obrigatória."
	msgPromptRequired  = "O prompt é obrigatório."
	msgGenerateFailure = "Falha ao gerar imagem."
)

type imagenHandler struct {
	container *app.Container
	executor  *executor.Executor
}

type imagenRequest struct {
	Prompt         string           `json:"prompt"`
	NegativePrompt string           `json:"negativePrompt"`
	APIKey         string           `json:"apiKey"`
	Slides         []models.Slide   `json:"slides"`
	SlideCount     int              `json:"slideCount"`
	BrandKit       *models.BrandKit `json:"brandKit"`
}

func (r imagenRequest) isBatch() bool {
	return len(r.Slides) > 0 || r.SlideCount > 0
}

type fallbackInfo struct {
	Used  bool `json:"used"`
	Steps any  `json:"steps"`
}

// imageResponse lists every sample in Images only when the tier returned
// more than one; Image is always the first.
type imageResponse struct {
	Image     string       `json:"image"`
	Images    []string     `json:"images,omitempty"`
	ModelUsed string       `json:"modelUsed"`
	Fallback  fallbackInfo `json:"fallback"`
}

type batchResponse struct {
	Images   []models.SlideImage `json:"images"`
	Fallback fallbackInfo        `json:"fallback"`
}

func (h *imagenHandler) generate(c *fiber.Ctx) error {
	var req imagenRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	apiKey := h.resolveAPIKey(c, req.APIKey)
	if apiKey == "" {
		return httputil.WriteError(c, fiber.StatusUnauthorized, msgAPIKeyRequired)
	}
	if !req.isBatch() && strings.TrimSpace(req.Prompt) == "" {
		return httputil.WriteErrorBody(c, fiber.StatusBadRequest, httputil.ErrorBody{
			Message: msgPromptRequired,
			Example: classify.ExamplePrompt,
		})
	}

	rc := requestctx.New(requestID(c), apiKey, c.Get(fiber.HeaderOrigin))
	ctx := requestctx.WithContext(c.UserContext(), rc)
	if timeout := h.container.Config.Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	c.SetUserContext(ctx)
	c.Locals(requestctx.FiberLocalsKey(), rc)
	requestctx.Logger(ctx).Info("image request received", "origin", rc.Origin, "batch", req.isBatch())

	idempotencyKey := strings.TrimSpace(c.Get(headerIdempotencyKey))
	if idempotencyKey != "" {
		if data, ok := h.container.Idempotency.Get(ctx, rc.KeyFingerprint, idempotencyKey); ok {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			c.Set(headerReplayed, "true")
			return c.Send(data)
		}
	}

	var resp any
	if req.isBatch() {
		res, err := h.executor.GenerateSlides(ctx, executor.BatchRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			APIKey:         apiKey,
			Slides:         req.Slides,
			SlideCount:     req.SlideCount,
			BrandKit:       req.BrandKit,
		}, nil)
		if err != nil {
			if len(res.Images) == 0 {
				return writeGenerationError(c, err)
			}
			return writeGenerationErrorWith(c, err, fiber.Map{
				"images":   res.Images,
				"fallback": fallbackInfo{Used: res.FallbackUsed, Steps: nonNil(res.Steps)},
			})
		}
		resp = batchResponse{
			Images:   res.Images,
			Fallback: fallbackInfo{Used: res.FallbackUsed, Steps: nonNil(res.Steps)},
		}
	} else {
		res, err := h.executor.Generate(ctx, models.GenerationRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			APIKey:         apiKey,
		})
		if err != nil {
			return writeGenerationError(c, err)
		}
		out := imageResponse{
			Image:     res.Base64,
			ModelUsed: res.Model,
			Fallback:  fallbackInfo{Used: res.FallbackUsed(), Steps: nonNil(res.Attempts)},
		}
		if len(res.Extra) > 0 {
			out.Images = append([]string{res.Base64}, res.Extra...)
		}
		resp = out
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, msgGenerateFailure)
	}
	if idempotencyKey != "" {
		h.container.Idempotency.Set(ctx, rc.KeyFingerprint, idempotencyKey, data)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (h *imagenHandler) chain(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tiers": h.executor.Chain()})
}

// resolveAPIKey prefers the body, then the provider key header, then the
// server default.
func (h *imagenHandler) resolveAPIKey(c *fiber.Ctx, fromBody string) string {
	if key := strings.TrimSpace(fromBody); key != "" {
		return key
	}
	if key := strings.TrimSpace(c.Get(h.container.Config.Imagen.APIKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(h.container.Config.Imagen.DefaultAPIKey)
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

