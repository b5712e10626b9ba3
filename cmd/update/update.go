package update

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

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

// New creates a new `update` command.
func New() *cobra.Command {
	var workingDir, snapshotPath string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh the snapshot's working copy fields",
		Long: "Update re-reads the currently dirty files and refreshes their " +
			"working copy fingerprints in the snapshot. Reference " +
			"fingerprints and deploy history are left untouched, and files " +
			"that became dirty since the last scan are added.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(workingDir, snapshotPath); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&workingDir, "working-dir", ".",
		"Path of the working copy containing the git repository.")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", snapshot.DefaultPath,
		"Path of the snapshot file to update.")
	return cmd
}

func run(workingDir, snapshotPath string) error {
	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); !ok {
			return err
		}
		snap = snapshot.New()
	}

	repo, err := gitstate.Open(workingDir)
	if err != nil {
		return err
	}
	paths, err := repo.DirtyPaths()
	if err != nil {
		return errors.WithContext(err, "list dirty files")
	}

	fmt.Fprintf(stdout, "Updating %s...\n\n", snapshotPath)

	collector := reconcile.Collector{WorkDir: workingDir}
	w := tabwriter.NewWriter(stdout, 0, 10, 5, ' ', 0)
	for _, path := range paths {
		record, tracked := snap.Get(path)
		if !tracked {
			record = &snapshot.Record{Path: path}
		}
		if err := collector.RefreshLocal(record); err != nil {
			return errors.WithContext(err, "refresh "+path)
		}

		// A path that is dirty because it was deleted, but that was never
		// tracked here, has nothing worth recording.
		if !tracked && record.LocalHash.Unknown() {
			continue
		}
		snap.Put(record)

		fmt.Fprintf(w, "%s\tlocal: %s\n", record.Path, timeString(record.LocalTime))
	}
	w.Flush()

	if err := snap.Save(snapshotPath); err != nil {
		return errors.WithContext(err, "save snapshot")
	}

	fmt.Fprintf(stdout, "\nUpdated %s. Total records: %d\n", snapshotPath, snap.Len())
	return nil
}

func timeString(t *time.Time) string {
	if t == nil {
		return "?"
	}
	return t.Format(timeLayout)
}
