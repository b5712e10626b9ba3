package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// RemoteNotFound represents when a path doesn't exist on the deployment
// target. It's a normal probe outcome rather than a failure, so callers
// check for it explicitly before treating remote errors as fatal.
type RemoteNotFound struct {
	Path string
}

func (err RemoteNotFound) Error() string {
	return fmt.Sprintf("%q does not exist on the remote", err.Path)
}
