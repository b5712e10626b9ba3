package scan

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stagecheck/stagecheck/cmd/util"
	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/gitstate"
	"github.com/stagecheck/stagecheck/pkg/reconcile"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

const timeLayout = "2006-01-02 15:04:05"

// Mocked out for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `scan` command.
func New() *cobra.Command {
	var workingDir, snapshotPath, commit string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Record the dirty files' local and git state in a snapshot",
		Long: "Scan lists the files that differ from the git reference and " +
			"records their working copy and reference fingerprints in the " +
			"snapshot file. The snapshot is what `stagecheck check` and " +
			"`stagecheck deploy` compare against the target.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(workingDir, snapshotPath, commit); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&workingDir, "working-dir", ".",
		"Path of the working copy containing the git repository.")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", snapshot.DefaultPath,
		"Path of the snapshot file to write.")
	cmd.Flags().StringVar(&commit, "commit", "",
		"Record the files changed by this commit rather than the dirty files.")
	return cmd
}

func run(workingDir, snapshotPath, commit string) error {
	repo, err := gitstate.Open(workingDir)
	if err != nil {
		return err
	}

	reference := "HEAD"
	if commit != "" {
		reference = commit
	}
	at, err := repo.At(reference)
	if err != nil {
		return err
	}

	var paths []string
	if commit == "" {
		paths, err = repo.DirtyPaths()
		if err != nil {
			return errors.WithContext(err, "list dirty files")
		}
	} else {
		paths, err = at.ChangedPaths()
		if err != nil {
			return errors.WithContext(err, "list changed files")
		}
	}

	if len(paths) == 0 {
		if commit == "" {
			fmt.Fprintf(stdout, "No dirty files in %s.\n", workingDir)
		} else {
			fmt.Fprintf(stdout, "No files changed in %s.\n", reference)
		}
		return nil
	}

	fmt.Fprintf(stdout, "Scanning %d files in %s against %s...\n\n",
		len(paths), workingDir, reference)

	collector := reconcile.Collector{WorkDir: workingDir, Reference: at}
	snap := snapshot.New()

	w := tabwriter.NewWriter(stdout, 0, 10, 5, ' ', 0)
	for _, path := range paths {
		record, err := collector.Fresh(path)
		if err != nil {
			return errors.WithContext(err, "observe "+path)
		}
		snap.Put(record)

		fmt.Fprintf(w, "%s\tgit: %s\tlocal: %s\n", record.Path,
			timeString(record.ReferenceTime), timeString(record.LocalTime))
	}
	w.Flush()

	if err := snap.Save(snapshotPath); err != nil {
		return errors.WithContext(err, "save snapshot")
	}
	log.WithField("records", snap.Len()).Debug("Wrote snapshot")

	fmt.Fprintf(stdout, "\nSaved %d file records to %s\n", snap.Len(), snapshotPath)
	return nil
}

func timeString(t *time.Time) string {
	if t == nil {
		return "?"
	}
	return t.Format(timeLayout)
}
