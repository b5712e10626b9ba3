package reconcile

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/buger/goterm"
)

// timeLayout is how report timestamps are displayed.
const timeLayout = "2006-01-02 15:04:05"

// statusOrder fixes the order of the summary section.
var statusOrder = []Status{
	StatusMatchLocal,
	StatusMatchGit,
	StatusMatchDeploy,
	StatusDiffHash,
	StatusMissing,
	StatusMatchSize,
	StatusDiffSize,
	StatusUnknown,
}

// Renderer prints the classification report: one line per path in
// classification order, then a count per status.
type Renderer struct {
	// Color enables terminal colors on status cells.
	Color bool
}

// Render writes the report for the given results.
func (r Renderer) Render(out io.Writer, results []Result) {
	rows := tabwriter.NewWriter(out, 0, 10, 5, ' ', 0)
	for _, result := range results {
		fmt.Fprintf(rows, "%s\t%s\t%s\n",
			result.Record.Path, r.statusCell(result.Status), detail(result))
	}
	rows.Flush()

	counts := map[Status]int{}
	for _, result := range results {
		counts[result.Status]++
	}

	fmt.Fprintln(out)
	summary := tabwriter.NewWriter(out, 0, 10, 5, ' ', 0)
	for _, status := range statusOrder {
		if counts[status] == 0 {
			continue
		}
		fmt.Fprintf(summary, "%s\t%d\n", r.statusCell(status), counts[status])
	}
	summary.Flush()
}

func (r Renderer) statusCell(status Status) string {
	if !r.Color {
		return string(status)
	}

	switch status {
	case StatusMatchLocal, StatusMatchGit, StatusMatchDeploy, StatusMatchSize:
		return goterm.Color(string(status), goterm.GREEN)
	case StatusMissing, StatusUnknown:
		return goterm.Color(string(status), goterm.YELLOW)
	default:
		return goterm.Color(string(status), goterm.RED)
	}
}

func detail(result Result) string {
	switch result.Status {
	case StatusMissing:
		return ""

	case StatusMatchSize, StatusDiffSize, StatusUnknown:
		line := fmt.Sprintf("[L: %s R: %s]",
			sizeString(result.Record.LocalSize), sizeString(result.RemoteSize))
		if result.Status == StatusDiffSize {
			line += " (possible line-ending diff)"
		}
		return line

	default:
		line := fmt.Sprintf("[L: %s %s R: %s]",
			timeString(result.Record.LocalTime),
			result.Order.Marker(),
			timeString(result.RemoteTime))

		// Matching content with a different byte count almost always means
		// the target stored different line endings.
		if result.Status == StatusMatchLocal && sizesDiffer(result) {
			line += " (sizes differ)"
		}
		return line
	}
}

func sizesDiffer(result Result) bool {
	return result.Record.LocalSize != nil && result.RemoteSize != nil &&
		*result.Record.LocalSize != *result.RemoteSize
}

func timeString(t *time.Time) string {
	if t == nil {
		return "?"
	}
	return t.Format(timeLayout)
}

func sizeString(size *int64) string {
	if size == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *size)
}
