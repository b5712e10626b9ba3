package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stagecheck/stagecheck/cmd/check"
	configCmd "github.com/stagecheck/stagecheck/cmd/config"
	"github.com/stagecheck/stagecheck/cmd/deploy"
	"github.com/stagecheck/stagecheck/cmd/diff"
	"github.com/stagecheck/stagecheck/cmd/scan"
	"github.com/stagecheck/stagecheck/cmd/update"
	"github.com/stagecheck/stagecheck/cmd/util"
	"github.com/stagecheck/stagecheck/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "STAGECHECK_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "stagecheck",
		Short:        "Reconcile local, git, and deployed file state before pushing changes",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		check.New(),
		configCmd.New(),
		deploy.New(),
		diff.New(),
		scan.New(),
		update.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
