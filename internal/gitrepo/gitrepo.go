// Package gitrepo provides the version-control primitives consumed by the
// orchestration pipeline. Git is invoked as a subprocess through a
// CommandRunner; no merge or push operation exists here — publishing is
// explicitly left to a human.
package gitrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/NielsdaWheelz/conductor/internal/diff"
	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/exec"
)

// maxStderrLen bounds stderr captured into error details.
const maxStderrLen = 8 * 1024

// Repo runs git primitives against a single repository root.
type Repo struct {
	Root   string
	Runner exec.CommandRunner
}

// New creates a Repo for the given root.
func New(root string, runner exec.CommandRunner) *Repo {
	return &Repo{Root: root, Runner: runner}
}

// git runs a git subcommand in the repo root and returns trimmed stdout.
// Non-zero exit becomes E_GIT_FAILED with the command, exit code, and
// truncated stderr in details.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.Runner.Run(ctx, "git", args, exec.RunOpts{Dir: r.Root})
	if err != nil {
		return "", errors.WrapWithDetails(
			errors.EGitFailed,
			"failed to execute git",
			err,
			map[string]string{"command": "git " + strings.Join(args, " ")},
		)
	}
	if res.ExitCode != 0 {
		stderr := res.Stderr
		details := map[string]string{
			"command":   "git " + strings.Join(args, " "),
			"exit_code": fmt.Sprintf("%d", res.ExitCode),
		}
		if len(stderr) > maxStderrLen {
			details["stderr_truncated"] = "true"
			stderr = stderr[:maxStderrLen]
		}
		if stderr != "" {
			details["stderr"] = stderr
		}
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "git " + strings.Join(args, " ") + " failed"
		}
		return "", errors.NewWithDetails(errors.EGitFailed, msg, details)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// IsRepo reports whether Root is inside a git work tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	out, err := r.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// HeadSHA returns the current HEAD commit id.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	return r.git(ctx, "rev-parse", "HEAD")
}

// IsClean reports whether the working tree has no uncommitted changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a local branch ref exists.
func (r *Repo) BranchExists(ctx context.Context, name string) bool {
	_, err := r.git(ctx, "rev-parse", "--verify", "refs/heads/"+name)
	return err == nil
}

// CreateBranch creates and checks out a new branch off base.
// A collision or any other git failure is E_BRANCH_FAILED; it is reported,
// not retried.
func (r *Repo) CreateBranch(ctx context.Context, name, base string) error {
	if r.BranchExists(ctx, name) {
		return errors.NewWithDetails(
			errors.EBranchFailed,
			fmt.Sprintf("branch %q already exists", name),
			map[string]string{"branch": name, "base": base},
		)
	}
	if _, err := r.git(ctx, "checkout", "-b", name, base); err != nil {
		return errors.WrapWithDetails(
			errors.EBranchFailed,
			fmt.Sprintf("failed to create branch %q off %q", name, base),
			err,
			map[string]string{"branch": name, "base": base},
		)
	}
	return nil
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(ctx context.Context, name string) error {
	_, err := r.git(ctx, "checkout", name)
	return err
}

// StageAll stages every change in the working tree, including new files.
func (r *Repo) StageAll(ctx context.Context) error {
	_, err := r.git(ctx, "add", "-A")
	return err
}

// DiffNumstat computes the change-set of the working tree (with staged
// additions) against base. Callers stage first so newly created files are
// counted.
func (r *Repo) DiffNumstat(ctx context.Context, base string) (diff.ChangeSet, error) {
	out, err := r.git(ctx, "diff", "--numstat", base)
	if err != nil {
		return nil, err
	}
	cs, perr := diff.ParseNumstat(out)
	if perr != nil {
		return nil, errors.Wrap(errors.EGitFailed, "failed to parse git numstat output", perr)
	}
	return cs, nil
}

// Commit commits all staged work as a single commit and returns its id.
func (r *Repo) Commit(ctx context.Context, message string) (string, error) {
	if _, err := r.git(ctx, "commit", "-m", message); err != nil {
		return "", errors.Wrap(errors.ECommitFailed, "git commit failed", err)
	}
	return r.HeadSHA(ctx)
}

// DiscardAll drops every uncommitted change, staged or not, and removes
// untracked files. Used to guarantee a failed task leaves no partial state.
func (r *Repo) DiscardAll(ctx context.Context) error {
	if _, err := r.git(ctx, "reset", "--hard"); err != nil {
		return err
	}
	_, err := r.git(ctx, "clean", "-fd")
	return err
}

// DeleteBranch removes a local branch. Best-effort cleanup for aborted
// tasks; the caller decides whether the error matters.
func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	_, err := r.git(ctx, "branch", "-D", name)
	return err
}
