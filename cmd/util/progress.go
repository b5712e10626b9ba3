package util

import (
	"fmt"
	"io"
	"time"
)

// ClearProgress erases the progress printer's output so that the next print
// starts on a clean line.
const ClearProgress = "\r\033[K"

// ProgressPrinter prints a message followed by a dot every second until it's
// stopped. It's used to show liveness during slow operations, like dialing
// the deployment target.
type ProgressPrinter struct {
	out      io.Writer
	msg      string
	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
}

// NewProgressPrinter creates a new progress printer. Callers should start it
// with `go pp.Run()` and stop it with `pp.Stop()` once the slow operation
// completes.
func NewProgressPrinter(out io.Writer, msg string) *ProgressPrinter {
	return &ProgressPrinter{
		out:      out,
		msg:      msg,
		interval: 1 * time.Second,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Run prints the progress messages until Stop is called.
func (pp *ProgressPrinter) Run() {
	defer close(pp.stopped)

	fmt.Fprint(pp.out, pp.msg)
	ticker := time.NewTicker(pp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprint(pp.out, ".")
		case <-pp.stop:
			return
		}
	}
}

// Stop terminates the printer and moves the cursor to the next line.
func (pp *ProgressPrinter) Stop() {
	pp.StopWithPrint("\n")
}

// StopWithPrint terminates the printer and prints `toPrint` in place of the
// trailing newline.
func (pp *ProgressPrinter) StopWithPrint(toPrint string) {
	close(pp.stop)
	<-pp.stopped
	fmt.Fprint(pp.out, toPrint)
}
