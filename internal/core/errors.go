package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when order fulfillment would drive a
	// stock level below zero. Plain adjustments are exempt: inventory count
	// corrections may legitimately go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ValidationError reports bad input rejected before any write. It is a
// distinct error kind so callers can separate user mistakes from store
// failures.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
