package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
	exit             = os.Exit
)

// HandleFatalError prints a friendly version of the given fatal error, and
// exits with status code 1. The full error chain is only logged at the Debug
// level since the wrapping context is meant for developers.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic recovers from panics so that crashes in background goroutines
// still produce a readable report rather than an interleaved stack dump.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	fmt.Fprintf(stderr, "stagecheck crashed: %v\n\n%s\n", r, debug.Stack())
	exit(1)
}

// PromptYesOrNo asks the user the given question, and reprompts until they
// answer either yes or no.
func PromptYesOrNo(question string) (bool, error) {
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprintf(stdout, "%s (y/n) ", question)
		response, err := reader.ReadString('\n')
		if err != nil {
			return false, errors.WithContext(err, "read response")
		}

		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// LoadSnapshot reads the snapshot file, pointing the operator at `scan` when
// it doesn't exist yet.
func LoadSnapshot(path string) (*snapshot.Snapshot, error) {
	snap, err := snapshot.Load(path)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return nil, errors.NewFriendlyError("There is no snapshot file at "+
				"%q. Please run `stagecheck scan` to create one.", path)
		}
		return nil, err
	}
	return snap, nil
}
