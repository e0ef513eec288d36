package provider

import (
	"errors"
	"fmt"
)

// UnavailableError signals that the mailbox gateway could not serve a
// fetch. It wraps the transport or status failure so callers can log the
// cause while branching on the type.
type UnavailableError struct {
	// Address is the mailbox the fetch was for.
	Address string

	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable for %s: %v",
		e.Address, e.Err)
}

// Unwrap exposes the cause to errors.Is/As.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}
