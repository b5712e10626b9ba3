// Package snapshot implements the authority file that records what's known
// about each tracked path: its state in the working copy, in the git
// reference, and as of the last deployment. The file is plain JSON so that
// operators can read it and prune entries by hand.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/fingerprint"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// DefaultPath is where commands look for the snapshot file unless told
// otherwise.
const DefaultPath = "stagecheck-snapshot.json"

// DeployStamp records a deployment that this tool performed or observed.
type DeployStamp struct {
	// Hash is the fingerprint the file had when it was deployed.
	Hash fingerprint.Fingerprint `json:"hash"`

	// Time is when the deployment happened.
	Time time.Time `json:"time"`
}

// Record is everything known about a single tracked path. All fields other
// than the path are optional. A nil pointer (or zero fingerprint) means the
// value was never observed, which is different from having observed an
// empty value.
type Record struct {
	// Path identifies the file, relative to the working copy root, always
	// with forward slashes.
	Path string `json:"path"`

	// LocalHash and LocalSize describe the working copy contents as of the
	// last scan.
	LocalHash fingerprint.Fingerprint `json:"localHash,omitempty"`
	LocalSize *int64                  `json:"localSize,omitempty"`

	// LocalTime is the working copy file's modification time.
	LocalTime *time.Time `json:"localTime,omitempty"`

	// ReferenceHash describes the file's contents in the git reference
	// commit, and ReferenceTime the commit time of the last change there.
	ReferenceHash fingerprint.Fingerprint `json:"referenceHash,omitempty"`
	ReferenceTime *time.Time              `json:"referenceTime,omitempty"`

	// LastDeploy is the most recent deployment of this path, if any.
	LastDeploy *DeployStamp `json:"lastDeploy,omitempty"`
}

// Snapshot is an ordered collection of records. The order is preserved
// across load and save so that reports and diffs stay stable.
type Snapshot struct {
	records []*Record
	index   map[string]*Record
	dirty   bool
}

// New creates an empty snapshot.
func New() *Snapshot {
	return &Snapshot{
		records: []*Record{},
		index:   map[string]*Record{},
	}
}

// Get returns the record for the given path, if one exists.
func (s *Snapshot) Get(path string) (*Record, bool) {
	record, ok := s.index[path]
	return record, ok
}

// Put adds the record, replacing any existing record for the same path
// while keeping its position.
func (s *Snapshot) Put(record *Record) {
	if existing, ok := s.index[record.Path]; ok {
		for i, r := range s.records {
			if r == existing {
				s.records[i] = record
				break
			}
		}
	} else {
		s.records = append(s.records, record)
	}
	s.index[record.Path] = record
	s.dirty = true
}

// Records returns the records in their stored order. Callers that modify a
// record in place must call MarkDirty for the change to be saved.
func (s *Snapshot) Records() []*Record {
	return s.records
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Dirty returns whether the snapshot has unsaved changes.
func (s *Snapshot) Dirty() bool {
	return s.dirty
}

// MarkDirty flags the snapshot as having unsaved changes.
func (s *Snapshot) MarkDirty() {
	s.dirty = true
}

// Load reads the snapshot at the given path. Optional fields that are
// absent from the file load as unknown. Unknown extra fields are ignored so
// that files written by newer versions still load.
func Load(path string) (*Snapshot, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.WithContext(err, "read")
	}

	var records []*Record
	if err := json.Unmarshal(contents, &records); err != nil {
		return nil, errors.NewFriendlyError(
			"The snapshot file %q is not valid JSON.\n"+
				"It may have been corrupted by a manual edit: %s", path, err)
	}

	snapshot := New()
	for _, record := range records {
		if _, ok := snapshot.Get(record.Path); ok {
			return nil, errors.NewFriendlyError(
				"The snapshot file %q lists %q more than once.\n"+
					"Remove the duplicate entries and retry.", path, record.Path)
		}
		snapshot.Put(record)
	}
	snapshot.dirty = false
	return snapshot, nil
}

// Save writes the snapshot to the given path and clears the dirty flag.
func (s *Snapshot) Save(path string) error {
	contents, err := json.MarshalIndent(s.records, "", "    ")
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return errors.WithContext(err, "create snapshot directory")
		}
	}

	if err := afero.WriteFile(fs, path, append(contents, '\n'), 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	s.dirty = false
	return nil
}
