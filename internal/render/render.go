// Package render formats backlog listings and session summaries for the
// terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/scheduler"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	faint  = color.New(color.Faint)
)

// stateColor picks the display color for a lifecycle state.
func stateColor(s backlog.State) *color.Color {
	switch {
	case s.Success():
		return green
	case s.Terminal():
		return red
	case s == backlog.StateQueued:
		return faint
	default:
		return yellow
	}
}

// BacklogTable writes one row per task in declaration order.
func BacklogTable(w io.Writer, g *backlog.Graph) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tCATEGORY\tDEPS\tTITLE")
	for _, t := range g.Tasks() {
		deps := "-"
		if len(t.DependsOn) > 0 {
			deps = strings.Join(t.DependsOn, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			stateColor(t.State).Sprint(string(t.State)),
			t.Category,
			deps,
			t.Title,
		)
	}
	tw.Flush()
}

// SessionSummary writes the end-of-run accounting.
func SessionSummary(w io.Writer, sum scheduler.Summary) {
	line := func(c *color.Color, label string, ids []string) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(w, "%s %s\n", c.Sprintf("%-10s", label+":"), strings.Join(ids, ", "))
	}
	line(green, "committed", sum.Committed)
	line(red, "failed", sum.Failed)
	line(red, "aborted", sum.Aborted)
	line(yellow, "blocked", sum.Blocked)
	line(faint, "skipped", sum.Skipped)

	total := len(sum.Committed) + len(sum.Failed) + len(sum.Aborted) + len(sum.Blocked) + len(sum.Skipped)
	if total == 0 {
		fmt.Fprintln(w, "nothing to do")
		return
	}
	fmt.Fprintf(w, "%d task(s): %d committed, %d failed, %d aborted, %d blocked, %d skipped\n",
		total, len(sum.Committed), len(sum.Failed), len(sum.Aborted), len(sum.Blocked), len(sum.Skipped))
}

// ReplayTable writes the reconstructed task states from an audit replay.
func ReplayTable(w io.Writer, states map[string]backlog.State, order []string) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATE")
	for _, id := range order {
		fmt.Fprintf(tw, "%s\t%s\n", id, stateColor(states[id]).Sprint(string(states[id])))
	}
	tw.Flush()
}
