package classify

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
)

var (
	retryInPattern  = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)`)
	retryDelayKeys  = []string{"retryDelay", "retry_delay"}
	retryDirectKeys = []string{"retryAfterSeconds", "retry_after_seconds", "retryAfter", "retry_after"}
)

// RetryAfter resolves the wait hint in seconds. Sources are tried in order:
// the Retry-After header, a RetryInfo retryDelay, direct retry fields, then a
// "retry in N" phrase in the message. The result is positive or nil.
func RetryAfter(header http.Header, payload document.Value, message string, now time.Time) *float64 {
	if v, ok := fromHeader(header, now); ok {
		return &v
	}
	if v, ok := fromRetryDelay(payload); ok {
		return &v
	}
	if v, ok := fromDirectFields(payload); ok {
		return &v
	}
	for _, text := range []string{message, ProviderMessage(payload)} {
		if m := retryInPattern.FindStringSubmatch(text); len(m) == 2 {
			if v, ok := positive(strconv.ParseFloat(m[1], 64)); ok {
				return &v
			}
		}
	}
	return nil
}

func fromHeader(header http.Header, now time.Time) (float64, bool) {
	if header == nil {
		return 0, false
	}
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if v, ok := positive(strconv.ParseFloat(raw, 64)); ok {
		return v, true
	}
	when, err := http.ParseTime(raw)
	if err != nil {
		return 0, false
	}
	return positive(when.Sub(now).Seconds(), nil)
}

func fromRetryDelay(payload document.Value) (float64, bool) {
	var out float64
	var found bool
	document.Walk(payload, nil, func(node document.Value) bool {
		for _, key := range retryDelayKeys {
			if v, ok := parseDelay(node.Get(key)); ok {
				out, found = v, true
				return false
			}
		}
		return true
	})
	return out, found
}

// parseDelay accepts the protobuf JSON form ("12s", "1.5s") and the
// structured {seconds, nanos} form.
func parseDelay(v document.Value) (float64, bool) {
	switch v.Kind() {
	case document.String:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if d, err := time.ParseDuration(s); err == nil {
			return positive(d.Seconds(), nil)
		}
		return positive(strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64))
	case document.Number:
		n, _ := v.Num()
		return positive(n, nil)
	case document.Map:
		secs, okS := numeric(v.Get("seconds"))
		nanos, okN := numeric(v.Get("nanos"))
		if !okS && !okN {
			return 0, false
		}
		return positive(secs+nanos/1e9, nil)
	default:
		return 0, false
	}
}

func fromDirectFields(payload document.Value) (float64, bool) {
	var out float64
	var found bool
	document.Walk(payload, nil, func(node document.Value) bool {
		for _, key := range retryDirectKeys {
			if n, ok := numeric(node.Get(key)); ok {
				if v, ok := positive(n, nil); ok {
					out, found = v, true
					return false
				}
			}
		}
		return true
	})
	return out, found
}

func numeric(v document.Value) (float64, bool) {
	if n, ok := v.Num(); ok {
		return n, true
	}
	if s, ok := v.Str(); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return n, err == nil
	}
	return 0, false
}

func positive(v float64, err error) (float64, bool) {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}
