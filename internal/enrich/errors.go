package enrich

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Per-item failure categories. All of them are retryable up to the task's
// attempt budget; ErrMaxAttempts marks the final failure.
var (
	ErrInferenceCall = eris.New("inference call failed")
	ErrResponseParse = eris.New("response parse failed")
	ErrInvalidResult = eris.New("invalid result")
	ErrLowConfidence = eris.New("low confidence")
	ErrStoreWrite    = eris.New("store write failed")
	ErrMaxAttempts   = eris.New("max attempts exceeded")
)

// tag marks err with a failure category while keeping err's own chain.
func tag(category, err error) error {
	return fmt.Errorf("%w: %w", category, err)
}
