// Package prompts builds image prompts for carousel slides from the slide
// copy and the client's brand kit.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

// DefaultNegativePrompt is used when neither the slide nor the request
// supplies one.
const DefaultNegativePrompt = "cluttered, busy, low quality, blurry, watermark, signature, distorted text, meme style"

const (
	defaultSubject  = "Instagram carousel slide"
	defaultOverlay  = "mensagens da marca"
	formatDirective = "Formato 4:5 para carrossel do Instagram. Design limpo, profissional e de alta qualidade."
)

// Slide returns the image prompt for one slide. An explicit slide prompt
// wins over the generated one.
func Slide(slide models.Slide, kit *models.BrandKit) string {
	if p := strings.TrimSpace(slide.Prompt); p != "" {
		return p
	}

	subject := pickFirst(slide.VisualDescription, slide.Title, defaultSubject)
	parts := []string{subject}
	if kit != nil {
		parts = appendLabeled(parts, "Tom geral", kit.Tone)
		parts = appendLabeled(parts, "Estilo visual", kit.VisualStyle)
		parts = appendLabeled(parts, "Paleta da marca", formatColors(kit.Colors))
		parts = appendLabeled(parts, "Composição desejada", kit.Composition)
		parts = appendLabeled(parts, "Elementos recorrentes", joinNonEmpty(kit.VisualElements, ", "))
		parts = appendLabeled(parts, "Referências visuais", kit.ReferenceNotes)
	}

	overlay := textOverlay(slide)
	if overlay == "" {
		overlay = defaultOverlay
	}
	return fmt.Sprintf("%s. %s Inclua espaço para texto com %s.", strings.Join(parts, ". "), formatDirective, overlay)
}

// Negative resolves the negative prompt for a slide.
func Negative(slide models.Slide, requestNegative string) string {
	return pickFirst(slide.NegativePrompt, requestNegative, DefaultNegativePrompt)
}

func textOverlay(slide models.Slide) string {
	var out []string
	if t := strings.TrimSpace(slide.Title); t != "" {
		out = append(out, fmt.Sprintf("Title: %q", t))
	}
	if s := strings.TrimSpace(slide.Subtitle); s != "" {
		out = append(out, fmt.Sprintf("Subtitle: %q", s))
	}
	if b := strings.TrimSpace(slide.Body); b != "" {
		out = append(out, fmt.Sprintf("Body: %q", b))
	}
	return strings.Join(out, " ")
}

// formatColors renders the palette sorted by role so the prompt is stable.
func formatColors(colors map[string]string) string {
	if len(colors) == 0 {
		return ""
	}
	keys := make([]string, 0, len(colors))
	for k := range colors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.TrimSpace(colors[k])
		if v == "" {
			continue
		}
		out = append(out, k+": "+v)
	}
	return strings.Join(out, ", ")
}

func appendLabeled(parts []string, label, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return parts
	}
	return append(parts, label+": "+value)
}

func joinNonEmpty(items []string, sep string) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return strings.Join(out, sep)
}

func pickFirst(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
