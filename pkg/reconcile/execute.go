package reconcile

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/fingerprint"
	"github.com/stagecheck/stagecheck/pkg/remote"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

// DefaultRetries is how many times a failed verification re-uploads before
// the item is marked failed.
const DefaultRetries = 3

// backupStampLayout matches the second precision of remote timestamps.
const backupStampLayout = "20060102150405"

// BackupSizeError means a backup read back with a different length than
// the remote probe reported. The item's upload must not proceed, since the
// backup is the only recovery path if the upload corrupts remote state.
type BackupSizeError struct {
	Path string
	Got  int64
	Want int64
}

func (err BackupSizeError) Error() string {
	return fmt.Sprintf("backup of %q is %d bytes, expected %d",
		err.Path, err.Got, err.Want)
}

// VerifyError means the uploaded file kept reading back with contents that
// don't match the working copy.
type VerifyError struct {
	Path     string
	Attempts int
}

func (err VerifyError) Error() string {
	return fmt.Sprintf("%q still differs from the working copy after %d upload attempts",
		err.Path, err.Attempts)
}

// Executor carries out a plan one item at a time.
type Executor struct {
	Store remote.Store
	Clock clockwork.Clock

	// WorkDir is the working copy root that uploads are read from.
	WorkDir string

	// BackupRoot and Project locate backups: every saved remote object
	// lands at <BackupRoot>/<Project>/<path>.<stamp>.
	BackupRoot string
	Project    string

	// Retries bounds re-uploads after a verification mismatch.
	Retries int

	// Progress receives the per-item status lines. Nil means silent.
	Progress io.Writer
}

func (e Executor) printf(format string, args ...interface{}) {
	if e.Progress == nil {
		return
	}
	fmt.Fprintf(e.Progress, format, args...)
}

// Outcome is the result of one plan item. An item failure never stops the
// rest of the batch; callers collect outcomes and report failures at the
// end.
type Outcome struct {
	Item Item

	// BackupPath is where the remote object was saved, when a backup ran.
	BackupPath string

	// Deployed is the provenance stamp for a successful upload.
	Deployed *snapshot.DeployStamp

	Err error
}

// Failed returns whether the item failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Execute runs every item in the plan and returns one outcome per item.
func (e Executor) Execute(plan *Plan) []Outcome {
	outcomes := make([]Outcome, 0, len(plan.Items))
	for _, item := range plan.Items {
		outcomes = append(outcomes, e.ExecuteItem(item))
	}
	return outcomes
}

// ExecuteItem backs up the existing remote object, uploads the working
// copy file, and verifies the transfer.
func (e Executor) ExecuteItem(item Item) Outcome {
	outcome := Outcome{Item: item}

	if item.NeedsBackup() {
		backupPath, err := e.backup(item)
		outcome.BackupPath = backupPath
		if err != nil {
			e.printf("failed.\n")
			outcome.Err = err
			return outcome
		}
	}

	if item.Kind == BackupOnly {
		return outcome
	}

	relPath := item.Result.Record.Path
	if err := e.Store.EnsureDir(path.Dir(relPath)); err != nil {
		outcome.Err = errors.WithContext(err, "create remote directories")
		return outcome
	}

	deployed, err := e.uploadAndVerify(relPath)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Deployed = deployed
	return outcome
}

func (e Executor) backup(item Item) (string, error) {
	relPath := item.Result.Record.Path
	backupPath := e.backupPath(relPath, item.Result.RemoteTime)
	e.printf("Backing up %s -> %s ... ", relPath, backupPath)

	if err := fs.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return "", errors.WithContext(err, "create backup directory")
	}

	backupFile, err := fs.Create(backupPath)
	if err != nil {
		return "", errors.WithContext(err, "create backup file")
	}
	fetchErr := e.Store.Fetch(relPath, backupFile)
	closeErr := backupFile.Close()
	if fetchErr != nil {
		return backupPath, errors.WithContext(fetchErr, "fetch remote contents")
	}
	if closeErr != nil {
		return backupPath, errors.WithContext(closeErr, "close backup file")
	}

	if item.Result.RemoteSize != nil {
		info, err := fs.Stat(backupPath)
		if err != nil {
			return backupPath, errors.WithContext(err, "stat backup")
		}
		if info.Size() != *item.Result.RemoteSize {
			return backupPath, BackupSizeError{
				Path: relPath,
				Got:  info.Size(),
				Want: *item.Result.RemoteSize,
			}
		}
		e.printf("Done (verified).\n")
	} else {
		e.printf("Done.\n")
	}

	log.WithFields(log.Fields{
		"path":   relPath,
		"backup": backupPath,
	}).Debug("Backed up remote object")
	return backupPath, nil
}

// backupPath keys backups by project and stamps them with the remote
// object's modification time, falling back to the current time when the
// server can't report one.
func (e Executor) backupPath(relPath string, remoteTime *time.Time) string {
	stamp := e.Clock.Now().Format(backupStampLayout)
	if remoteTime != nil {
		stamp = remoteTime.Format(backupStampLayout)
	}
	return filepath.Join(e.BackupRoot, e.Project, filepath.FromSlash(relPath)) +
		"." + stamp
}

func (e Executor) uploadAndVerify(relPath string) (*snapshot.DeployStamp, error) {
	localPath := filepath.Join(e.WorkDir, filepath.FromSlash(relPath))
	e.printf("Uploading %s ... ", relPath)

	attempts := e.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		localFile, err := fs.Open(localPath)
		if err != nil {
			e.printf("failed.\n")
			return nil, errors.WithContext(err, "open local file")
		}
		uploadErr := e.Store.Upload(relPath, localFile)
		localFile.Close()
		if uploadErr != nil {
			e.printf("failed.\n")
			return nil, errors.WithContext(uploadErr, "upload")
		}

		digester := fingerprint.NewDigester()
		if err := e.Store.Fetch(relPath, digester); err != nil {
			e.printf("failed.\n")
			return nil, errors.WithContext(err, "fetch for verification")
		}
		remoteHash, _ := digester.Sum()

		// The local file is fingerprinted fresh on every attempt so the
		// provenance records what the target actually holds, even if the
		// working copy changed mid-run.
		localHash, err := e.localFingerprint(localPath)
		if err != nil {
			e.printf("failed.\n")
			return nil, err
		}

		if remoteHash == localHash {
			e.printf("Done (verified).\n")
			return &snapshot.DeployStamp{Hash: localHash, Time: e.Clock.Now()}, nil
		}

		log.WithFields(log.Fields{
			"path":    relPath,
			"attempt": attempt,
		}).Debug("Verification mismatch after upload")
		if attempt < attempts {
			e.printf("verification failed, retrying ... ")
		} else {
			e.printf("verification failed.\n")
		}
	}
	return nil, VerifyError{Path: relPath, Attempts: attempts}
}

func (e Executor) localFingerprint(localPath string) (fingerprint.Fingerprint, error) {
	localFile, err := fs.Open(localPath)
	if err != nil {
		return "", errors.WithContext(err, "open local file")
	}
	defer localFile.Close()

	hash, _, err := fingerprint.Reader(localFile)
	if err != nil {
		return "", errors.WithContext(err, "fingerprint local file")
	}
	return hash, nil
}
