package fallback

import (
	"errors"
	"fmt"

	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
)

var (
	// ErrCancelled marks a generation aborted by the caller's context. It is
	// never a provider failure.
	ErrCancelled = errors.New("generation cancelled")
	// ErrExhausted marks a chain where every tier failed with a retryable error.
	ErrExhausted = errors.New("all model tiers failed")
	// ErrNoTiers is returned when the orchestrator has nothing to try.
	ErrNoTiers = errors.New("no model tiers configured")
)

type cancelledError struct {
	cause error
}

func (e cancelledError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCancelled, e.cause)
}

func (e cancelledError) Unwrap() []error {
	return []error{ErrCancelled, e.cause}
}

func cancelled(cause error) error {
	return cancelledError{cause: cause}
}

// ExhaustedError wraps the error of the last tier. Its cause chain holds one
// link per attempted tier.
type ExhaustedError struct {
	Last *classify.Error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrExhausted, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

// AsClassified extracts the classified provider error carried by err.
func AsClassified(err error) (*classify.Error, bool) {
	var ce *classify.Error
	if errors.As(err, &ce) && ce != nil {
		return ce, true
	}
	return nil, false
}
