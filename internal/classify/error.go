// Package classify turns provider failures into typed errors that drive the
// fallback chain and the HTTP error contract.
package classify

import (
	"fmt"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
)

// Kind is the classification of a provider failure.
type Kind uint8

const (
	Fatal Kind = iota
	Retryable
	Quota
	Safety
)

func (k Kind) String() string {
	switch k {
	case Retryable:
		return "retryable"
	case Quota:
		return "quota"
	case Safety:
		return "safety"
	default:
		return "fatal"
	}
}

// Error is a classified provider failure. Status is zero when no HTTP
// response was received. Cause links to the error of the previous attempt.
type Error struct {
	Kind              Kind
	Status            int
	RetryAfterSeconds *float64
	Payload           document.Value
	Message           string
	Details           string
	Model             string
	Cause             *Error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Model != "" {
		return fmt.Sprintf("%s: %s: %s", e.Model, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Terminal reports whether the error must stop the fallback chain.
func (e *Error) Terminal() bool {
	return e == nil || e.Kind != Retryable
}

// Chain returns every error of the causal chain, oldest attempt first and e
// last.
func (e *Error) Chain() []*Error {
	var out []*Error
	seen := make(map[*Error]struct{})
	for cur := e; cur != nil; cur = cur.Cause {
		if _, ok := seen[cur]; ok {
			break
		}
		seen[cur] = struct{}{}
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// WithCause returns a copy of e linked to cause.
func (e *Error) WithCause(cause *Error) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Cause = cause
	return &cp
}

// RetryAfter returns the wait hint in seconds, or zero when unknown.
func (e *Error) RetryAfter() float64 {
	if e == nil || e.RetryAfterSeconds == nil {
		return 0
	}
	return *e.RetryAfterSeconds
}
