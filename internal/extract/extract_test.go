package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
	"github.com/pedrolicio/instagram-carousel-generator/internal/providers/fixtures"
)

func parse(t *testing.T, raw string) document.Value {
	t.Helper()
	doc, err := document.Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestExtractImageShapeVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.ExtractedImage
	}{
		{
			name: "inline camelCase",
			raw:  `{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/png","data":"QUJD"}}]}}]}`,
			want: models.ExtractedImage{Base64: "QUJD"},
		},
		{
			name: "inline snake_case",
			raw:  `{"candidates":[{"content":{"parts":[{"inline_data":{"mime_type":"image/png","data":"QUJD"}}]}}]}`,
			want: models.ExtractedImage{Base64: "QUJD"},
		},
		{
			name: "inline on candidate",
			raw:  `{"candidates":[{"inlineData":{"base64":"QUJD"}}]}`,
			want: models.ExtractedImage{Base64: "QUJD"},
		},
		{
			name: "nested predictions",
			raw:  `{"predictions":[{"mimeType":"image/png","bytesBase64Encoded":"QUJD"}]}`,
			want: models.ExtractedImage{Base64: "QUJD"},
		},
		{
			name: "direct b64_json",
			raw:  `{"created":1,"data":[{"b64_json":"QUJD"}]}`,
			want: models.ExtractedImage{Base64: "QUJD"},
		},
		{
			name: "generated images snake_case",
			raw:  `{"generated_images":[{"image":{"image_base64":"QUJD"}}]}`,
			want: models.ExtractedImage{Base64: "QUJD"},
		},
		{
			name: "data uri is stripped",
			raw:  `{"images":[{"base64Image":"data:image/png;base64,QUJD"}]}`,
			want: models.ExtractedImage{Base64: "QUJD"},
		},
		{
			name: "file uri only",
			raw:  `{"candidates":[{"content":{"parts":[{"fileData":{"mimeType":"image/png","fileUri":"https://host/img"}}]}}]}`,
			want: models.ExtractedImage{FileURI: "https://host/img"},
		},
		{
			name: "file uri snake_case",
			raw:  `{"candidates":[{"content":{"parts":[{"file_data":{"file_uri":"https://host/img"}}]}}]}`,
			want: models.ExtractedImage{FileURI: "https://host/img"},
		},
		{
			name: "download uri on files",
			raw:  `{"files":[{"downloadUri":"https://host/dl"}]}`,
			want: models.ExtractedImage{FileURI: "https://host/dl"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractImage(parse(t, tt.raw))
			require.True(t, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractImagePrefersInlineOverFileURI(t *testing.T) {
	doc := parse(t, `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QUJD"},"fileData":{"fileUri":"https://host/img"}}]}}]}`)
	got, ok := ExtractImage(doc)
	require.True(t, ok)
	require.Equal(t, "QUJD", got.Base64)
	require.Empty(t, got.FileURI)
}

func TestExtractImageRejectsNonHTTPURIs(t *testing.T) {
	doc := parse(t, `{"candidates":[{"content":{"parts":[{"fileData":{"fileUri":"gs://bucket/img"}}]}}]}`)
	_, ok := ExtractImage(doc)
	require.False(t, ok)
}

func TestExtractImageIgnoresProseAndTooShortPayloads(t *testing.T) {
	doc := parse(t, `{"candidates":[{"content":{"parts":[{"text":"no image for you"},{"inlineData":{"data":"not base64!"}},{"base64":"ab"}]}}]}`)
	_, ok := ExtractImage(doc)
	require.False(t, ok)
}

func TestExtractImageIsIndependentOfKeyOrder(t *testing.T) {
	a := parse(t, `{"predictions":[{"bytesBase64Encoded":"UFJFRA=="}],"candidates":[{"content":{"parts":[{"inlineData":{"data":"Q0FORA=="}}]}}]}`)
	b := parse(t, `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"Q0FORA=="}}]}}],"predictions":[{"bytesBase64Encoded":"UFJFRA=="}]}`)

	gotA, okA := ExtractImage(a)
	gotB, okB := ExtractImage(b)
	require.True(t, okA)
	require.True(t, okB)
	require.Equal(t, gotA, gotB)
	// predictions sit shallower than the candidate parts
	require.Equal(t, "UFJFRA==", gotA.Base64)
}

func TestExtractImageIgnoresCitationAndGroundingLinks(t *testing.T) {
	doc := parse(t, `{"candidates":[{
		"content":{"parts":[{"text":"texto"}]},
		"citationMetadata":{"citationSources":[{"uri":"https://news.example/article","startIndex":0}]},
		"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://blog.example/post","title":"post"}}]}
	}],"links":[{"url":"https://other.example"}]}`)
	_, ok := ExtractImage(doc)
	require.False(t, ok)
	require.Empty(t, ExtractAllImages(doc))
}

func TestExtractImageAcceptsGenericURIOnParts(t *testing.T) {
	doc := parse(t, `{"candidates":[{"content":{"parts":[{"text":"ok"},{"uri":"https://host/part-img"}]}}]}`)
	got, ok := ExtractImage(doc)
	require.True(t, ok)
	require.Equal(t, "https://host/part-img", got.FileURI)

	doc = parse(t, `{"candidates":[{"content":{"parts":[{"media":{"url":"https://host/media-img"}}]}}]}`)
	got, ok = ExtractImage(doc)
	require.True(t, ok)
	require.Equal(t, "https://host/media-img", got.FileURI)
}

func TestExtractImageNotFoundOnDegenerateInput(t *testing.T) {
	var zero document.Value
	_, ok := ExtractImage(zero)
	require.False(t, ok)

	_, ok = ExtractImage(document.EmptyMap())
	require.False(t, ok)

	_, ok = ExtractImage(document.StringValue("QUJD"))
	require.False(t, ok)

	root := document.NewMap()
	root.Set("candidates", document.ListValue(document.NewList(document.MapValue(root))))
	_, ok = ExtractImage(document.MapValue(root))
	require.False(t, ok)
}

func TestExtractAllImagesDeduplicates(t *testing.T) {
	doc := parse(t, `{
		"predictions":[
			{"bytesBase64Encoded":"QUJD"},
			{"bytesBase64Encoded":"QUJD"},
			{"bytesBase64Encoded":"REVG"}
		],
		"files":[{"uri":"https://host/a"},{"uri":"https://host/a"}]
	}`)
	got := ExtractAllImages(doc)
	require.Equal(t, []models.ExtractedImage{
		{Base64: "QUJD"},
		{Base64: "REVG"},
		{FileURI: "https://host/a"},
	}, got)
}

func TestExtractImageRecordedPayloads(t *testing.T) {
	tests := []struct {
		fixture string
		base64  bool
		uri     string
		found   bool
	}{
		{fixture: "gemini_inline.json", base64: true, found: true},
		{fixture: "imagen_predict.json", base64: true, found: true},
		{fixture: "gemini_file_uri.json", uri: "https://generativelanguage.googleapis.com/v1beta/files/abc123:download?alt=media", found: true},
		{fixture: "gemini_text_only.json"},
		{fixture: "gemini_safety.json"},
		{fixture: "quota_exhausted.json"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.fixture, func(t *testing.T) {
			doc, err := fixtures.Document(tt.fixture)
			require.NoError(t, err)
			got, ok := ExtractImage(doc)
			require.Equal(t, tt.found, ok)
			if tt.base64 {
				require.True(t, strings.HasPrefix(got.Base64, "iVBORw0KGgo"))
				require.Empty(t, got.FileURI)
			}
			require.Equal(t, tt.uri, got.FileURI)
		})
	}
}
