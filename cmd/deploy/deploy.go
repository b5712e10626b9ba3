package deploy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stagecheck/stagecheck/cmd/util"
	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/reconcile"
	"github.com/stagecheck/stagecheck/pkg/remote"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

// DefaultBackupDir is where remote objects are saved before being
// overwritten. Each target gets a subdirectory named after its project.
const DefaultBackupDir = "~/.stagecheck/backups"

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
	dial             = remote.Dial
	clock            = clockwork.NewRealClock()
)

type options struct {
	workingDir   string
	snapshotPath string
	targetPath   string
	backupDir    string
	yes          bool
}

// New creates a new `deploy` command.
func New() *cobra.Command {
	var opts options
	var sizeOnly bool
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload the working copy to the target when it's safe to",
		Long: "Deploy compares every tracked file against the target and " +
			"uploads the working copy version, saving a backup of whatever " +
			"the target currently holds. A remote file whose contents match " +
			"neither the working copy, the git reference, nor a previous " +
			"deploy stops the whole run unless the conflict is resolved " +
			"interactively.",
		Run: func(_ *cobra.Command, _ []string) {
			if sizeOnly {
				util.HandleFatalError(errors.NewFriendlyError(
					"Size matches can't prove the contents are equal, so " +
						"size-only comparisons can't drive a deploy.\n" +
						"Please run `stagecheck check --size-only` instead."))
			}
			if err := run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.workingDir, "working-dir", ".",
		"Path of the working copy containing the files to upload.")
	cmd.Flags().StringVar(&opts.snapshotPath, "snapshot", snapshot.DefaultPath,
		"Path of the snapshot file to deploy from.")
	cmd.Flags().StringVar(&opts.targetPath, "target", remote.DefaultConfigPath,
		"Path of the target configuration file.")
	cmd.Flags().StringVar(&opts.backupDir, "backup-dir", DefaultBackupDir,
		"Directory to store backups of overwritten remote files in.")
	cmd.Flags().BoolVar(&opts.yes, "yes", false,
		"Skip the confirmation prompt.")
	cmd.Flags().BoolVar(&sizeOnly, "size-only", false,
		"Not allowed for deploys. Only `stagecheck check` supports it.")
	return cmd
}

func run(opts options) error {
	snap, err := util.LoadSnapshot(opts.snapshotPath)
	if err != nil {
		return err
	}
	if snap.Len() == 0 {
		fmt.Fprintf(stdout, "No file records in %s.\n", opts.snapshotPath)
		return nil
	}

	config, err := remote.ParseConfig(opts.targetPath)
	if err != nil {
		return err
	}

	backupRoot, err := homedir.Expand(opts.backupDir)
	if err != nil {
		return errors.WithContext(err, "expand backup dir")
	}

	pp := util.NewProgressPrinter(stdout, fmt.Sprintf("Connecting to %s..", config.Host))
	go pp.Run()
	store, err := dial(config)
	pp.StopWithPrint(util.ClearProgress)
	if err != nil {
		return errors.WithContext(err, "connect")
	}
	defer store.Close()

	classifier := reconcile.Classifier{Store: store}
	pp = util.NewProgressPrinter(stdout, fmt.Sprintf("Comparing %d paths..", snap.Len()))
	go pp.Run()
	results, err := classifier.ClassifyAll(snap.Records())
	pp.StopWithPrint(util.ClearProgress)

	reconcile.Renderer{Color: true}.Render(stdout, results)
	if err != nil {
		return errors.WithContext(err, "compare with target")
	}

	reader := bufio.NewReader(stdin)
	plan, err := reconcile.BuildPlan(results, &terminalDecider{in: reader, out: stdout})
	if err != nil {
		if err == reconcile.ErrAborted {
			return errors.NewFriendlyError("Deployment aborted. The target was not changed.")
		}
		return err
	}

	// Files already matching the working copy never had their deployment
	// recorded if they were uploaded by hand. Adopt them now, so future
	// remote edits are detected even after this run changes nothing else.
	if seeded := reconcile.SeedCurrent(snap, plan.Current, clock.Now()); seeded > 0 {
		log.WithField("records", seeded).Debug("Recorded deploy provenance for current files")
	}

	if plan.Empty() {
		fmt.Fprintln(stdout, "\nNo files to deploy.")
		return saveIfDirty(snap, opts.snapshotPath)
	}

	uploads := 0
	for _, item := range plan.Items {
		if item.Kind == reconcile.Upload {
			uploads++
		}
	}
	fmt.Fprintf(stdout, "\n%d files will be uploaded. Backups will be stored in: %s\n",
		uploads, filepath.Join(backupRoot, config.Project))

	if !opts.yes {
		proceed, err := confirmProceed(reader)
		if err != nil {
			return errors.WithContext(err, "read confirmation")
		}
		if !proceed {
			fmt.Fprintln(stdout, "Deployment cancelled by user.")
			return saveIfDirty(snap, opts.snapshotPath)
		}
	}
	fmt.Fprintln(stdout)

	executor := reconcile.Executor{
		Store:      store,
		Clock:      clock,
		WorkDir:    opts.workingDir,
		BackupRoot: backupRoot,
		Project:    config.Project,
		Retries:    reconcile.DefaultRetries,
		Progress:   stdout,
	}
	outcomes := executor.Execute(plan)

	reconcile.ApplyOutcomes(snap, outcomes)
	if err := saveIfDirty(snap, opts.snapshotPath); err != nil {
		return err
	}

	var failed []reconcile.Outcome
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed = append(failed, outcome)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(stdout, "\nWARNING: Some files failed to deploy or verify correctly:")
		for _, outcome := range failed {
			fmt.Fprintf(stdout, " - %s: %s\n",
				outcome.Item.Result.Record.Path, errors.GetPrintableMessage(outcome.Err))
		}
		return errors.NewFriendlyError("%d of %d files failed to deploy.",
			len(failed), len(plan.Items))
	}

	fmt.Fprintln(stdout, "\nDeployment completed successfully.")
	return nil
}

// terminalDecider puts unexplained remote changes to the operator, one path
// at a time. Anything other than an explicit replace or keep aborts the run.
type terminalDecider struct {
	in  *bufio.Reader
	out io.Writer
}

func (d *terminalDecider) Resolve(result reconcile.Result) (reconcile.Decision, error) {
	fmt.Fprintf(d.out, "\n%s on the target matches neither the working copy, "+
		"the git reference, nor a previous deploy.\n", result.Record.Path)
	fmt.Fprint(d.out, "Overwrite it (a backup is taken first), keep the "+
		"remote version, or abort? [replace/keep/abort]: ")

	response, err := d.in.ReadString('\n')
	if err != nil {
		return reconcile.Abort, err
	}
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "replace", "r":
		return reconcile.Replace, nil
	case "keep", "k":
		return reconcile.Keep, nil
	default:
		return reconcile.Abort, nil
	}
}

// confirmProceed asks for the whole-run confirmation. An empty answer counts
// as a yes, matching the prompt's capital Y.
func confirmProceed(in *bufio.Reader) (bool, error) {
	fmt.Fprint(stdout, "Proceed with deployment? (Y/n): ")
	response, err := in.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func saveIfDirty(snap *snapshot.Snapshot, path string) error {
	if !snap.Dirty() {
		return nil
	}
	return errors.WithContext(snap.Save(path), "save snapshot")
}
