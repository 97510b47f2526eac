// Package exec provides the CommandRunner abstraction for invoking external
// processes. All subprocess use in conductor (git, project checks) goes
// through CommandRunner so tests can stub it.
package exec

import (
	"bytes"
	"context"
	"os"
	osexec "os/exec"
	"time"
)

// Result holds the outcome of a completed command.
type Result struct {
	// ExitCode is the process exit code. -1 if the process was killed
	// (including context cancellation and timeout).
	ExitCode int

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// TimedOut is true if the command was killed by the RunOpts timeout.
	TimedOut bool

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// RunOpts contains per-invocation options.
type RunOpts struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the full environment. Nil means inherit the process environment.
	Env []string

	// Timeout bounds the command. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// CommandRunner runs external commands.
//
// A non-zero exit code is not an error; err is non-nil only when the command
// could not be started (binary missing, bad working directory) or the context
// was cancelled before completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, opts RunOpts) (Result, error)
}

// RealRunner executes commands via os/exec.
type RealRunner struct{}

// NewRealRunner creates a CommandRunner backed by os/exec.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// Run executes the command and captures stdout/stderr.
func (r *RealRunner) Run(ctx context.Context, name string, args []string, opts RunOpts) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(runCtx, name, args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	} else {
		cmd.Env = os.Environ()
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	// Timeout shows up as a killed process with runCtx done.
	if opts.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		res.TimedOut = true
		return res, nil
	}

	if err != nil {
		if exitErr, ok := err.(*osexec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// Could not start at all.
		res.ExitCode = -1
		return res, err
	}

	res.ExitCode = 0
	return res, nil
}
