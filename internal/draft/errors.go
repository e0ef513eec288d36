package draft

import (
	"errors"
	"fmt"
)

// GenerationExhaustedError is returned when every generation attempt
// produced an unusable draft.
type GenerationExhaustedError struct {
	// Attempts is how many model calls were made.
	Attempts int

	// LastReason describes why the final candidate was rejected.
	LastReason string
}

// Error implements error.
func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("generation exhausted after %d attempt(s): %s",
		e.Attempts, e.LastReason)
}

// IsExhausted reports whether err is a GenerationExhaustedError.
func IsExhausted(err error) bool {
	var target *GenerationExhaustedError
	return errors.As(err, &target)
}

// PersistenceError is returned when a draft was generated but could not
// be saved. The draft rides along so callers lose no work.
type PersistenceError struct {
	// Draft is the generated but unsaved draft.
	Draft Draft

	// Err is the underlying store failure.
	Err error
}

// Error implements error.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("draft generated but not saved: %v", e.Err)
}

// Unwrap exposes the cause to errors.Is/As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AsPersistenceError extracts a PersistenceError from err, if present.
func AsPersistenceError(err error) (*PersistenceError, bool) {
	var target *PersistenceError
	ok := errors.As(err, &target)
	return target, ok
}
