package prompts

import (
	"strings"
	"testing"

	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

func TestSlideWithoutBrandKit(t *testing.T) {
	got := Slide(models.Slide{SlideNumber: 1}, nil)
	want := "Instagram carousel slide. Formato 4:5 para carrossel do Instagram. Design limpo, profissional e de alta qualidade. Inclua espaço para texto com mensagens da marca."
	if got != want {
		t.Fatalf("unexpected prompt:\n got %q\nwant %q", got, want)
	}
}

func TestSlideWithBrandKit(t *testing.T) {
	kit := &models.BrandKit{
		Tone:           "inspirador",
		Colors:         map[string]string{"secondary": "#ffffff", "primary": "#ff0055", "accent": " "},
		VisualStyle:    "minimalista",
		Composition:    "texto à esquerda",
		VisualElements: []string{"ícones", "", "gradientes"},
	}
	slide := models.Slide{
		VisualDescription: "Pessoa sorrindo com notebook",
		Title:             "Produtividade",
		Body:              "3 hábitos simples",
	}

	got := Slide(slide, kit)
	for _, fragment := range []string{
		"Pessoa sorrindo com notebook. Tom geral: inspirador",
		"Estilo visual: minimalista",
		"Paleta da marca: primary: #ff0055, secondary: #ffffff",
		"Composição desejada: texto à esquerda",
		"Elementos recorrentes: ícones, gradientes",
		`Inclua espaço para texto com Title: "Produtividade" Body: "3 hábitos simples".`,
	} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("prompt %q missing %q", got, fragment)
		}
	}
	if strings.Contains(got, "accent") {
		t.Fatalf("empty colors must be skipped: %q", got)
	}
}

func TestSlideFallsBackToTitle(t *testing.T) {
	got := Slide(models.Slide{Title: "Capa"}, &models.BrandKit{})
	if !strings.HasPrefix(got, "Capa. Formato 4:5") {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestSlideExplicitPromptWins(t *testing.T) {
	got := Slide(models.Slide{Prompt: "  custom prompt ", Title: "ignored"}, &models.BrandKit{Tone: "x"})
	if got != "custom prompt" {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestNegative(t *testing.T) {
	cases := []struct {
		slide   models.Slide
		request string
		want    string
	}{
		{models.Slide{}, "", DefaultNegativePrompt},
		{models.Slide{}, "text", "text"},
		{models.Slide{NegativePrompt: "slide"}, "text", "slide"},
	}
	for _, tc := range cases {
		if got := Negative(tc.slide, tc.request); got != tc.want {
			t.Fatalf("Negative(%+v, %q) = %q want %q", tc.slide, tc.request, got, tc.want)
		}
	}
}
