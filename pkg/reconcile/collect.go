package reconcile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/fingerprint"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

// ReferenceSource reads file state out of the version control reference,
// pinned to one revision.
type ReferenceSource interface {
	// Contents returns the file's contents in the reference, or
	// errors.FileNotFound if the path doesn't exist there.
	Contents(path string) ([]byte, error)

	// LastChange returns the time of the last commit that touched the
	// path. The zero time means no commit did.
	LastChange(path string) (time.Time, error)
}

// Collector builds authority records by observing the working copy and the
// git reference. It never touches the deployment target.
type Collector struct {
	// WorkDir is the working copy root that record paths are relative to.
	WorkDir string

	// Reference supplies the reference side of each record.
	Reference ReferenceSource
}

// Fresh builds a record for a path, observing both authorities.
func (c Collector) Fresh(path string) (*snapshot.Record, error) {
	record := &snapshot.Record{Path: filepath.ToSlash(path)}
	if err := c.RefreshLocal(record); err != nil {
		return nil, err
	}
	if err := c.refreshReference(record); err != nil {
		return nil, err
	}
	return record, nil
}

// RefreshLocal re-observes the working copy fields of the record. A file
// that doesn't exist locally clears them to unknown.
func (c Collector) RefreshLocal(record *snapshot.Record) error {
	localPath := filepath.Join(c.WorkDir, filepath.FromSlash(record.Path))

	localFile, err := fs.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			record.LocalHash = ""
			record.LocalSize = nil
			record.LocalTime = nil
			return nil
		}
		return errors.WithContext(err, "open local file")
	}
	hash, size, err := fingerprint.Reader(localFile)
	localFile.Close()
	if err != nil {
		return errors.WithContext(err, "fingerprint local file")
	}

	record.LocalHash = hash
	record.LocalSize = &size
	record.LocalTime = nil
	if info, err := fs.Stat(localPath); err == nil {
		modTime := info.ModTime()
		record.LocalTime = &modTime
	}
	return nil
}

func (c Collector) refreshReference(record *snapshot.Record) error {
	contents, err := c.Reference.Contents(record.Path)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			record.ReferenceHash = ""
			record.ReferenceTime = nil
			return nil
		}
		return errors.WithContext(err, "read reference contents")
	}

	record.ReferenceHash, _ = fingerprint.Bytes(contents)
	record.ReferenceTime = nil

	when, err := c.Reference.LastChange(record.Path)
	if err != nil {
		return errors.WithContext(err, "read reference history")
	}
	if !when.IsZero() {
		record.ReferenceTime = &when
	}
	return nil
}
