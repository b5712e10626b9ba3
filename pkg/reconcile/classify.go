// Package reconcile implements the three-way comparison between the working
// copy, the git reference, and the deployment target, and the safety rules
// that decide what may be uploaded.
package reconcile

import (
	"time"

	"github.com/spf13/afero"

	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/fingerprint"
	"github.com/stagecheck/stagecheck/pkg/remote"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Status describes how a remote object relates to the known authorities.
// Exactly one status applies per path per run. Statuses are derived fresh
// each run and never persisted.
type Status string

const (
	// StatusMatchLocal means the remote contents equal the working copy.
	StatusMatchLocal Status = "MATCH LOCAL"

	// StatusMatchGit means the remote contents equal the git reference.
	StatusMatchGit Status = "MATCH GIT"

	// StatusMatchDeploy means the remote contents equal what this tool
	// last deployed.
	StatusMatchDeploy Status = "MATCH DEPLOY"

	// StatusDiffHash means no known authority explains the remote
	// contents. Overwriting would destroy an unknown change.
	StatusDiffHash Status = "DIFF HASH"

	// StatusMissing means the path doesn't exist on the target.
	StatusMissing Status = "MISSING"

	// The remaining statuses only occur in size-only mode, which compares
	// byte counts without fetching contents.
	StatusMatchSize Status = "MATCH SIZE"
	StatusDiffSize  Status = "DIFF SIZE"
	StatusUnknown   Status = "UNKNOWN"
)

// TimeOrder compares the working copy's modification time to the remote's.
// It's shown to the operator but never drives any decision, since
// fingerprints are the only trusted equality signal.
type TimeOrder string

const (
	TimeNewer   TimeOrder = "newer"
	TimeOlder   TimeOrder = "older"
	TimeEqual   TimeOrder = "equal"
	TimeUnknown TimeOrder = "unknown"
)

// Marker returns the single-character form used in reports.
func (order TimeOrder) Marker() string {
	switch order {
	case TimeNewer:
		return ">"
	case TimeOlder:
		return "<"
	case TimeEqual:
		return "="
	default:
		return "?"
	}
}

// Result is the classification of a single record against the live target.
type Result struct {
	Record *snapshot.Record
	Status Status

	// RemoteSize and RemoteTime are what the target reported for the
	// object, when it exists. RemoteTime is nil when the server can't
	// report modification times.
	RemoteSize *int64
	RemoteTime *time.Time

	// Order compares the record's local modification time to RemoteTime.
	Order TimeOrder
}

// Classifier compares records against a live deployment target.
type Classifier struct {
	Store remote.Store

	// SizeOnly skips content fetches and compares byte counts only. It
	// exists for quick checks over slow links, and its results can't feed
	// a deploy.
	SizeOnly bool
}

// Classify probes the target for the record's path and determines its
// status. Errors are transport failures; a missing remote file is a normal
// outcome, not an error.
func (c Classifier) Classify(record *snapshot.Record) (Result, error) {
	result := Result{Record: record, Order: TimeUnknown}

	size, err := c.Store.Size(record.Path)
	switch {
	case err == nil:
		result.RemoteSize = &size
	case isNotFound(err):
		result.Status = StatusMissing
		return result, nil
	default:
		return Result{}, errors.WithContext(err, "probe size")
	}

	if modTime, err := c.Store.ModTime(record.Path); err == nil && !modTime.IsZero() {
		result.RemoteTime = &modTime
	}
	result.Order = timeOrder(record.LocalTime, result.RemoteTime)

	if c.SizeOnly {
		switch {
		case record.LocalSize == nil:
			result.Status = StatusUnknown
		case *record.LocalSize == *result.RemoteSize:
			result.Status = StatusMatchSize
		default:
			result.Status = StatusDiffSize
		}
		return result, nil
	}

	digester := fingerprint.NewDigester()
	if err := c.Store.Fetch(record.Path, digester); err != nil {
		if isNotFound(err) {
			// The object disappeared between the probe and the fetch.
			result.Status = StatusMissing
			result.RemoteSize = nil
			result.RemoteTime = nil
			return result, nil
		}
		return Result{}, errors.WithContext(err, "fetch remote contents")
	}
	remoteHash, _ := digester.Sum()

	// Precedence matters here: the working copy is the freshest signal, so
	// it wins ties against the reference and old deploy stamps.
	switch {
	case !record.LocalHash.Unknown() && remoteHash == record.LocalHash:
		result.Status = StatusMatchLocal
	case !record.ReferenceHash.Unknown() && remoteHash == record.ReferenceHash:
		result.Status = StatusMatchGit
	case record.LastDeploy != nil && remoteHash == record.LastDeploy.Hash:
		result.Status = StatusMatchDeploy
	default:
		result.Status = StatusDiffHash
	}
	return result, nil
}

// ClassifyAll classifies every record in order. On a transport error it
// returns the results computed so far along with the error, so the report
// for the completed portion isn't lost.
func (c Classifier) ClassifyAll(records []*snapshot.Record) ([]Result, error) {
	var results []Result
	for _, record := range records {
		result, err := c.Classify(record)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// timeOrder compares timestamps at second precision, since FTP servers
// don't report finer grain.
func timeOrder(local, remoteTime *time.Time) TimeOrder {
	if local == nil || remoteTime == nil {
		return TimeUnknown
	}

	l := local.Truncate(time.Second)
	r := remoteTime.Truncate(time.Second)
	switch {
	case l.After(r):
		return TimeNewer
	case l.Before(r):
		return TimeOlder
	default:
		return TimeEqual
	}
}

func isNotFound(err error) bool {
	_, ok := errors.RootCause(err).(errors.RemoteNotFound)
	return ok
}
