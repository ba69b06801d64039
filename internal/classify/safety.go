package classify

import (
	"strings"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
)

var (
	reasonKeys       = []string{"finishReason", "finish_reason", "blockReason", "block_reason"}
	ratingKeys       = []string{"safetyRatings", "safety_ratings"}
	reasonDetailKeys = []string{"blockReasonMessage", "block_reason_message", "finishMessage", "finish_message"}
)

// ScanSafety searches the payload for safety block markers and returns the
// human readable categories and messages that explain the block.
func ScanSafety(payload document.Value) (string, bool) {
	blocked := false
	var details []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		details = append(details, s)
	}

	document.Walk(payload, nil, func(node document.Value) bool {
		if !node.IsMap() {
			return true
		}
		for _, key := range reasonKeys {
			if reason, ok := node.Get(key).Str(); ok && strings.Contains(strings.ToUpper(reason), "SAFETY") {
				blocked = true
				for _, dk := range reasonDetailKeys {
					if msg, ok := node.Get(dk).Str(); ok {
						add(msg)
					}
				}
			}
		}
		for _, key := range ratingKeys {
			for _, rating := range node.Get(key).Items() {
				flagged, _ := rating.Get("blocked").Truth()
				if prob, ok := rating.Get("probability").Str(); ok && strings.EqualFold(prob, "VERY_LIKELY") {
					flagged = true
				}
				if !flagged {
					continue
				}
				blocked = true
				if category, ok := rating.Get("category").Str(); ok {
					add(HumanizeCategory(category))
				}
			}
		}
		return true
	})

	if !blocked {
		return "", false
	}
	if len(details) == 0 {
		return defaultSafetyDetails, true
	}
	return strings.Join(details, ", "), true
}

// HumanizeCategory turns HARM_CATEGORY_SEXUALLY_EXPLICIT into
// "sexually explicit".
func HumanizeCategory(category string) string {
	c := strings.TrimPrefix(strings.TrimSpace(category), "HARM_CATEGORY_")
	return strings.ToLower(strings.ReplaceAll(c, "_", " "))
}
