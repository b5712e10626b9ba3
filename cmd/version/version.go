package version

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tcnksm/go-latest"

	"github.com/stagecheck/stagecheck/cmd/util"
	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/version"
)

// The GitHub project that releases are published under.
const (
	githubOwner      = "stagecheck"
	githubRepository = "stagecheck"
)

// Mocked out for unit testing.
var (
	stdout      io.Writer = os.Stdout
	checkLatest           = latest.Check
)

// New creates a new `version` command.
func New() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the stagecheck version",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(check); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&check, "check", false,
		"Also check whether a newer release has been published.")
	return cmd
}

func run(check bool) error {
	fmt.Fprintf(stdout, "stagecheck %s\n", version.Version)
	if !check {
		return nil
	}

	if version.Version == version.EmptyValue {
		return errors.NewFriendlyError(
			"Development builds can't be compared against releases.")
	}

	githubTag := &latest.GithubTag{
		Owner:      githubOwner,
		Repository: githubRepository,
	}
	res, err := checkLatest(githubTag, version.Version)
	if err != nil {
		return errors.WithContext(err, "check latest release")
	}

	if res.Outdated {
		fmt.Fprintf(stdout, "A newer release is available: %s\n", res.Current)
	} else {
		fmt.Fprintln(stdout, "You are on the latest release.")
	}
	return nil
}
