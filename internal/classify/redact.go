package classify

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

const redacted = "REDACTED"

var keyParam = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey)=)[^&\s"']+`)

// RedactError renders err without credentials. Transport errors from
// net/http embed the full request URL, whose query carries the API key.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.URL != "" {
		msg = strings.ReplaceAll(msg, uerr.URL, RedactURL(uerr.URL))
	}
	return keyParam.ReplaceAllString(msg, "${1}"+redacted)
}

// RedactURL masks the key query parameter of raw.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return keyParam.ReplaceAllString(raw, "${1}"+redacted)
	}
	q := u.Query()
	changed := false
	for name := range q {
		switch strings.ToLower(name) {
		case "key", "api_key", "apikey":
			q.Set(name, redacted)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
