// Package checks runs the project's automated checks (format, lint,
// typecheck, build, tests) as opaque commands returning pass/fail plus
// diagnostic text.
package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NielsdaWheelz/conductor/internal/config"
	"github.com/NielsdaWheelz/conductor/internal/exec"
)

// maxDiagnostics bounds diagnostic text carried in results.
const maxDiagnostics = 16 * 1024

// Result is the outcome of one check.
type Result struct {
	Name        string
	OK          bool
	ExitCode    int
	TimedOut    bool
	DurationMS  int64
	Diagnostics string
}

// Runner executes the configured checks in order inside the task worktree.
type Runner struct {
	// Checks are run in declaration order.
	Checks []config.Check

	// CR runs the check commands.
	CR exec.CommandRunner

	// Dir is the working directory (the repo root on the task branch).
	Dir string

	// LogDir, if set, receives one <name>.log per executed check.
	// Log writes are best-effort.
	LogDir string
}

// Run executes checks in order. The first failing check short-circuits the
// rest; the returned sequence contains only the checks that actually ran.
// A check that cannot be started, exits non-zero, or hits its timeout is a
// failed check — checks are never retried here. The error is non-nil only
// for context cancellation.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	var results []Result
	for _, c := range r.Checks {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := r.CR.Run(ctx, c.Cmd[0], c.Cmd[1:], exec.RunOpts{
			Dir:     r.Dir,
			Timeout: c.Timeout,
		})

		cr := Result{
			Name:       c.Name,
			ExitCode:   res.ExitCode,
			TimedOut:   res.TimedOut,
			DurationMS: res.Duration.Milliseconds(),
		}

		switch {
		case err != nil:
			cr.OK = false
			cr.Diagnostics = fmt.Sprintf("failed to run %s: %v", strings.Join(c.Cmd, " "), err)
		case res.TimedOut:
			cr.OK = false
			cr.Diagnostics = truncate(combineOutput(res) + "\n(check timed out)")
		case res.ExitCode != 0:
			cr.OK = false
			cr.Diagnostics = truncate(combineOutput(res))
		default:
			cr.OK = true
		}

		r.writeLog(c.Name, res, cr)
		results = append(results, cr)

		if !cr.OK {
			break
		}
	}
	return results, nil
}

// AllPassed reports whether every result in the sequence passed.
// An empty sequence did not pass anything.
func AllPassed(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failed result, if any.
func FirstFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if !r.OK {
			return r, true
		}
	}
	return Result{}, false
}

func combineOutput(res exec.Result) string {
	out := strings.TrimSpace(res.Stdout)
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		if out != "" {
			out += "\n"
		}
		out += errOut
	}
	return out
}

func truncate(s string) string {
	if len(s) > maxDiagnostics {
		return s[:maxDiagnostics] + "…"
	}
	return s
}

// writeLog records a check's full output under LogDir. Best-effort.
func (r *Runner) writeLog(name string, res exec.Result, cr Result) {
	if r.LogDir == "" {
		return
	}
	if err := os.MkdirAll(r.LogDir, 0o755); err != nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "check: %s\nok: %v\nexit_code: %d\ntimed_out: %v\nduration_ms: %d\n\n",
		name, cr.OK, cr.ExitCode, cr.TimedOut, cr.DurationMS)
	sb.WriteString(res.Stdout)
	if res.Stderr != "" {
		sb.WriteString("\n--- stderr ---\n")
		sb.WriteString(res.Stderr)
	}
	_ = os.WriteFile(filepath.Join(r.LogDir, name+".log"), []byte(sb.String()), 0o644)
}
