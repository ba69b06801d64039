package providers

import (
	"net/url"

	"github.com/pedrolicio/instagram-carousel-generator/internal/models"
)

// Tier is one entry of the fixed fallback chain.
type Tier struct {
	Attempt models.ModelAttempt
	Host    string
	Caller  ImageCaller
}

// TierInfo is the public description of a tier. It never carries credentials.
type TierInfo struct {
	Sequence int    `json:"sequence"`
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
	Host     string `json:"host,omitempty"`
}

// Info describes the tier for diagnostics.
func (t Tier) Info() TierInfo {
	return TierInfo{
		Sequence: t.Attempt.SequenceIndex,
		Model:    t.Attempt.ModelID,
		Endpoint: string(t.Attempt.EndpointKind),
		Host:     t.Host,
	}
}

// Describe lists the chain in order.
func Describe(tiers []Tier) []TierInfo {
	out := make([]TierInfo, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, t.Info())
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
