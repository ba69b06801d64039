// Package extract locates generated images inside provider responses whose
// shape varies across model generations.
package extract

import (
	"strings"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

// Key priority lists. Traversal order depends only on these lists and on the
// sorted key order of the remaining fields, never on the source key order.
var (
	inlineKeys = []string{"inlineData", "inline_data"}

	inlinePayloadKeys = []string{
		"data", "base64", "b64", "imageBase64", "image_base64",
		"bytesBase64Encoded", "bytes_base64_encoded",
	}

	directKeys = []string{
		"bytesBase64Encoded", "bytes_base64_encoded",
		"base64Image", "base64_image",
		"imageBase64", "image_base64",
		"b64_json", "b64Json",
		"base64", "b64",
	}

	fileContainerKeys = []string{"fileData", "file_data", "media", "mediaData", "media_data"}

	// fileURIKeys name a downloadable file wherever they appear. The generic
	// looseURIKeys only count inside a file container or on a part, since
	// citation and grounding metadata use the same names for web pages.
	fileURIKeys  = []string{"fileUri", "file_uri", "downloadUri", "download_uri"}
	looseURIKeys = []string{"uri", "url", "source"}
	partURIKeys  = append(append([]string{}, fileURIKeys...), looseURIKeys...)

	partListKeys = []string{"parts", "files"}

	containerKeys = []string{
		"candidates", "contents", "content", "parts",
		"predictions", "generatedImages", "generated_images",
		"images", "artifacts", "data", "items", "output", "outputs",
		"files", "media", "mediaData", "media_data", "image",
	}
)

const dedupPrefixLen = 64

// ExtractImage returns the first image found in the document. The boolean is
// false when nothing matches, which is an expected outcome, not an error.
func ExtractImage(doc document.Value) (models.ExtractedImage, bool) {
	var found models.ExtractedImage
	w := newWalker()
	document.Walk(doc, w.children, func(node document.Value) bool {
		img, ok := w.match(node)
		if ok {
			found = img
			return false
		}
		return true
	})
	return found, !found.IsZero()
}

// ExtractAllImages collects every image in traversal order, dropping
// duplicates that share a base64 prefix or a file URI.
func ExtractAllImages(doc document.Value) []models.ExtractedImage {
	var out []models.ExtractedImage
	seen := make(map[string]struct{})
	w := newWalker()
	document.Walk(doc, w.children, func(node document.Value) bool {
		img, ok := w.match(node)
		if !ok {
			return true
		}
		key := dedupKey(img)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			out = append(out, img)
		}
		return true
	})
	return out
}

// walker remembers which nodes were reached as elements of a part list.
// Breadth-first order guarantees a parent is expanded before its parts are
// visited.
type walker struct {
	parts map[document.Value]struct{}
}

func newWalker() *walker {
	return &walker{parts: make(map[document.Value]struct{})}
}

func (w *walker) children(node document.Value) []document.Value {
	if node.IsMap() {
		for _, key := range partListKeys {
			for _, item := range node.Get(key).Items() {
				if item.IsMap() {
					w.parts[item] = struct{}{}
				}
			}
		}
	}
	return children(node)
}

func (w *walker) match(node document.Value) (models.ExtractedImage, bool) {
	if _, ok := w.parts[node]; ok {
		return matchNode(node, partURIKeys)
	}
	return matchNode(node, fileURIKeys)
}

func dedupKey(img models.ExtractedImage) string {
	if img.Base64 != "" {
		if len(img.Base64) > dedupPrefixLen {
			return "b64:" + img.Base64[:dedupPrefixLen]
		}
		return "b64:" + img.Base64
	}
	return "uri:" + img.FileURI
}

// matchNode checks inline data, direct base64 fields, file containers and
// finally uriKeys on the node itself.
func matchNode(node document.Value, uriKeys []string) (models.ExtractedImage, bool) {
	if !node.IsMap() {
		return models.ExtractedImage{}, false
	}
	for _, key := range inlineKeys {
		if b64, ok := pickBase64(node.Get(key), inlinePayloadKeys); ok {
			return models.ExtractedImage{Base64: b64}, true
		}
	}
	if b64, ok := pickBase64(node, directKeys); ok {
		return models.ExtractedImage{Base64: b64}, true
	}
	for _, key := range fileContainerKeys {
		if uri, ok := pickFileURI(node.Get(key), fileURIKeys, looseURIKeys); ok {
			return models.ExtractedImage{FileURI: uri}, true
		}
	}
	if uri, ok := pickFileURI(node, uriKeys); ok {
		return models.ExtractedImage{FileURI: uri}, true
	}
	return models.ExtractedImage{}, false
}

func pickBase64(node document.Value, keys []string) (string, bool) {
	if !node.IsMap() {
		return "", false
	}
	for _, key := range keys {
		raw, ok := node.Get(key).Str()
		if !ok {
			continue
		}
		if payload, ok := normalizeBase64(raw); ok {
			return payload, true
		}
	}
	return "", false
}

func pickFileURI(node document.Value, keyLists ...[]string) (string, bool) {
	if !node.IsMap() {
		return "", false
	}
	for _, keys := range keyLists {
		for _, key := range keys {
			raw, ok := node.Get(key).Str()
			if !ok {
				continue
			}
			if trimmed := strings.TrimSpace(raw); strings.HasPrefix(strings.ToLower(trimmed), "http") {
				return trimmed, true
			}
		}
	}
	return "", false
}

// normalizeBase64 strips a data URI prefix and rejects short strings or
// anything outside the standard and URL-safe alphabets, so fields holding prose
// are skipped.
func normalizeBase64(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ";base64,")
		if idx < 0 {
			return "", false
		}
		s = s[idx+len(";base64,"):]
	}
	if len(s) < 4 {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '=', c == '-', c == '_':
		case c == '\n', c == '\r':
		default:
			return "", false
		}
	}
	return s, true
}

// children orders the known container keys first, then every remaining field
// in sorted order, so nested but unnamed structures are still searched.
func children(node document.Value) []document.Value {
	switch node.Kind() {
	case document.List:
		return node.Items()
	case document.Map:
		out := make([]document.Value, 0, node.Len())
		known := make(map[string]struct{}, len(containerKeys))
		for _, key := range containerKeys {
			known[key] = struct{}{}
			if v := node.Get(key); v.IsMap() || v.IsList() {
				out = append(out, v)
			}
		}
		for _, key := range node.Keys() {
			if _, ok := known[key]; ok {
				continue
			}
			if v := node.Get(key); v.IsMap() || v.IsList() {
				out = append(out, v)
			}
		}
		return out
	default:
		return nil
	}
}
