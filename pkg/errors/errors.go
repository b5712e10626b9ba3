// Package errors implements the error types used throughout the project.
// Errors are wrapped with short context strings as they travel up the call
// stack, while the original error remains accessible via RootCause.
package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return goerrors.New(msg)
}

// contextError annotates an error with the operation that failed.
type contextError struct {
	context string
	err     error
}

// WithContext wraps err with a short description of the operation that
// failed, e.g. "parse target config". The result reads
// "parse target config: <cause>".
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// RootCause returns the innermost error in a chain of context wrappers. It's
// used to inspect the original typed error regardless of how many times it
// was annotated on the way up.
func RootCause(err error) error {
	for {
		wrapped, ok := err.(contextError)
		if !ok {
			return err
		}
		err = wrapped.err
	}
}
