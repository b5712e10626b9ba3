// Package remote speaks to the deployment target. All paths are relative to
// the target's deployment root, using forward slashes.
package remote

import (
	"io"
	"time"
)

// Store is a connection to the deployment target.
type Store interface {
	// Size returns the size in bytes of the file at the given path.
	// Missing files return errors.RemoteNotFound.
	Size(path string) (int64, error)

	// ModTime returns the modification time of the file at the given path.
	// Missing files return errors.RemoteNotFound. The zero time (with a nil
	// error) means the target can't report modification times.
	ModTime(path string) (time.Time, error)

	// Fetch streams the contents of the file at the given path into dst.
	// Missing files return errors.RemoteNotFound.
	Fetch(path string, dst io.Writer) error

	// Upload replaces the contents of the file at the given path.
	Upload(path string, src io.Reader) error

	// EnsureDir creates the directory at the given path, along with any
	// missing parents. It's a no-op when the directories already exist.
	EnsureDir(path string) error

	// Close terminates the connection.
	Close() error
}
