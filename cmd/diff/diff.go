package diff

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/stagecheck/stagecheck/cmd/util"
	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/fingerprint"
	"github.com/stagecheck/stagecheck/pkg/gitstate"
)

// Mocked out for unit testing.
var (
	fs     afero.Fs  = afero.NewOsFs()
	stdout io.Writer = os.Stdout
)

// New creates a new `diff` command.
func New() *cobra.Command {
	var workingDir, ref string
	cmd := &cobra.Command{
		Use:   "diff [path[::path]]...",
		Short: "Compare files while ignoring line endings and indentation",
		Long: "Diff compares files by whitespace trimmed fingerprint: line " +
			"endings and leading or trailing whitespace on each line are " +
			"ignored, which matches how deployments are verified. A " +
			"`first::second` argument compares two local files, and a bare " +
			"path is compared to the same path in the git reference.",
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(workingDir, ref, args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&workingDir, "working-dir", ".",
		"Path of the working copy containing the git repository.")
	cmd.Flags().StringVar(&ref, "ref", "HEAD",
		"Git revision to compare bare paths against.")
	return cmd
}

func run(workingDir, ref string, entries []string) error {
	// The repository is only opened when some argument actually needs the
	// reference side, so pair comparisons work outside any repository.
	var reference *gitstate.Commit
	for _, entry := range entries {
		if strings.Contains(entry, "::") {
			continue
		}
		repo, err := gitstate.Open(workingDir)
		if err != nil {
			return err
		}
		reference, err = repo.At(ref)
		if err != nil {
			return err
		}
		break
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if parts := strings.SplitN(entry, "::", 2); len(parts) == 2 {
			lines = append(lines, comparePair(parts[0], parts[1]))
		} else {
			lines = append(lines, compareWithReference(reference, workingDir, ref, entry))
		}
	}

	for _, line := range lines {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func comparePair(pathA, pathB string) string {
	hashA, err := localHash(pathA)
	if err != nil {
		return errorLine(pathA, err)
	}
	hashB, err := localHash(pathB)
	if err != nil {
		return errorLine(pathB, err)
	}

	label := fmt.Sprintf("%s vs %s", pathA, pathB)
	if hashA == hashB {
		return "[MATCH] " + label
	}
	return fmt.Sprintf("[DIFF ] %s (different hash)", label)
}

func compareWithReference(reference *gitstate.Commit, workingDir, ref, path string) string {
	localFingerprint, err := localHash(path)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return "[ERROR] Local file not found: " + path
		}
		return errorLine(path, err)
	}

	relPath := relativeTo(workingDir, path)
	contents, err := reference.Contents(relPath)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return fmt.Sprintf("[ERROR] Git file not found: %s in %s", relPath, ref)
		}
		return errorLine(relPath, err)
	}

	label := fmt.Sprintf("%s vs Git %s", path, ref)
	if localFingerprint == fingerprint.LineTrimmed(contents) {
		return "[MATCH] " + label
	}
	return fmt.Sprintf("[DIFF ] %s (different hash)", label)
}

func errorLine(path string, err error) string {
	if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
		return "[ERROR] File not found: " + path
	}
	return fmt.Sprintf("[ERROR] %s: %s", path, errors.GetPrintableMessage(err))
}

func localHash(path string) (fingerprint.Fingerprint, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.FileNotFound{Path: path}
		}
		return "", errors.WithContext(err, "read file")
	}
	return fingerprint.LineTrimmed(contents), nil
}

// relativeTo rewrites a path to be relative to the working copy root, so it
// can be looked up in the reference. Paths outside the working copy are
// returned as given.
func relativeTo(workingDir, path string) string {
	absDir, err := filepath.Abs(workingDir)
	if err != nil {
		return filepath.ToSlash(path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
