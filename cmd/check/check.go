package check

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stagecheck/stagecheck/cmd/util"
	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/reconcile"
	"github.com/stagecheck/stagecheck/pkg/remote"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout
	dial             = remote.Dial
)

// New creates a new `check` command.
func New() *cobra.Command {
	var snapshotPath, targetPath string
	var sizeOnly bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the snapshot against the deployment target",
		Long: "Check downloads every tracked file from the target and reports " +
			"whether its contents match the working copy, the git reference, " +
			"or a previous deploy. Contents are compared with line ending " +
			"independent fingerprints, so files rewritten by ASCII mode FTP " +
			"transfers still match.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(snapshotPath, targetPath, sizeOnly); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "snapshot", snapshot.DefaultPath,
		"Path of the snapshot file to compare.")
	cmd.Flags().StringVar(&targetPath, "target", remote.DefaultConfigPath,
		"Path of the target configuration file.")
	cmd.Flags().BoolVar(&sizeOnly, "size-only", false,
		"Only compare file sizes. Faster, but a size match can't prove the "+
			"contents are equal.")
	return cmd
}

func run(snapshotPath, targetPath string, sizeOnly bool) error {
	snap, err := util.LoadSnapshot(snapshotPath)
	if err != nil {
		return err
	}
	if snap.Len() == 0 {
		fmt.Fprintf(stdout, "No file records in %s.\n", snapshotPath)
		return nil
	}

	config, err := remote.ParseConfig(targetPath)
	if err != nil {
		return err
	}

	pp := util.NewProgressPrinter(stdout, fmt.Sprintf("Connecting to %s..", config.Host))
	go pp.Run()
	store, err := dial(config)
	pp.StopWithPrint(util.ClearProgress)
	if err != nil {
		return errors.WithContext(err, "connect")
	}
	defer store.Close()

	classifier := reconcile.Classifier{Store: store, SizeOnly: sizeOnly}
	pp = util.NewProgressPrinter(stdout, fmt.Sprintf("Comparing %d paths..", snap.Len()))
	go pp.Run()
	results, classifyErr := classifier.ClassifyAll(snap.Records())
	pp.StopWithPrint(util.ClearProgress)

	// Render whatever classified cleanly even if a later path failed, so a
	// flaky connection still yields a partial report.
	reconcile.Renderer{Color: true}.Render(stdout, results)
	if classifyErr != nil {
		return errors.WithContext(classifyErr, "compare with target")
	}
	return nil
}
