// Package errors provides standardized error categories that express business intent
// rather than infrastructure details. Domain packages wrap these categories with their
// own sentinel errors, and handlers map the categories to status codes.
package errors

import (
	"errors"
	"fmt"
)

// Error categories shared by every domain module.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the request conflicts with the current state of a resource.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is malformed or fails validation.
	// Errors in this category are detected locally and never reach a remote service.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates a dependency (typically the key management service) could
	// not serve the request right now. Callers may retry with backoff.
	ErrUnavailable = errors.New("unavailable")

	// ErrUnprocessable indicates well-formed input that cannot be processed, such as a
	// ciphertext that fails authentication. Retrying will not help.
	ErrUnprocessable = errors.New("unprocessable")
)

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
