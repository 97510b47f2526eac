package gitrepo

import (
	"context"
	"testing"

	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/exec"
)

func newTestRepo() (*Repo, *exec.StubRunner) {
	cr := exec.NewStubRunner()
	return New("/repo", cr), cr
}

func TestIsRepo(t *testing.T) {
	r, cr := newTestRepo()
	cr.Respond("git rev-parse --is-inside-work-tree", exec.Result{Stdout: "true\n"}, nil)

	if !r.IsRepo(context.Background()) {
		t.Error("IsRepo() = false, want true")
	}

	r2, cr2 := newTestRepo()
	cr2.Respond("git rev-parse --is-inside-work-tree", exec.Result{ExitCode: 128, Stderr: "not a git repository"}, nil)
	if r2.IsRepo(context.Background()) {
		t.Error("IsRepo() = true, want false")
	}
}

func TestIsClean(t *testing.T) {
	r, cr := newTestRepo()
	cr.Respond("git status --porcelain", exec.Result{Stdout: "\n"}, nil)

	clean, err := r.IsClean(context.Background())
	if err != nil {
		t.Fatalf("IsClean() error = %v", err)
	}
	if !clean {
		t.Error("IsClean() = false for empty status")
	}

	r2, cr2 := newTestRepo()
	cr2.Respond("git status --porcelain", exec.Result{Stdout: " M main.go\n"}, nil)
	clean, err = r2.IsClean(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if clean {
		t.Error("IsClean() = true for dirty status")
	}
}

func TestGitFailureDetails(t *testing.T) {
	r, cr := newTestRepo()
	cr.Respond("git rev-parse HEAD", exec.Result{ExitCode: 128, Stderr: "fatal: bad revision\n"}, nil)

	_, err := r.HeadSHA(context.Background())
	if errors.GetCode(err) != errors.EGitFailed {
		t.Fatalf("HeadSHA() = %v, want E_GIT_FAILED", err)
	}
	ce, _ := errors.AsConductorError(err)
	if ce.Details["command"] != "git rev-parse HEAD" {
		t.Errorf("command detail = %q", ce.Details["command"])
	}
	if ce.Details["exit_code"] != "128" {
		t.Errorf("exit_code detail = %q", ce.Details["exit_code"])
	}
}

func TestCreateBranch(t *testing.T) {
	r, cr := newTestRepo()
	// rev-parse --verify fails: branch does not exist yet.
	cr.Respond("git rev-parse --verify refs/heads/task/T1", exec.Result{ExitCode: 128}, nil)
	cr.Respond("git checkout -b task/T1 main", exec.Result{}, nil)

	if err := r.CreateBranch(context.Background(), "task/T1", "main"); err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}

	lines := cr.CommandLines()
	if lines[len(lines)-1] != "git checkout -b task/T1 main" {
		t.Errorf("last command = %q", lines[len(lines)-1])
	}
}

func TestCreateBranchCollision(t *testing.T) {
	r, cr := newTestRepo()
	// rev-parse --verify succeeds: the branch already exists.
	cr.Respond("git rev-parse --verify refs/heads/task/T1", exec.Result{Stdout: "abc123\n"}, nil)

	err := r.CreateBranch(context.Background(), "task/T1", "main")
	if errors.GetCode(err) != errors.EBranchFailed {
		t.Fatalf("CreateBranch() = %v, want E_BRANCH_FAILED", err)
	}

	// The collision is detected before any checkout runs.
	for _, line := range cr.CommandLines() {
		if line == "git checkout -b task/T1 main" {
			t.Error("checkout ran despite collision")
		}
	}
}

func TestDiffNumstat(t *testing.T) {
	r, cr := newTestRepo()
	cr.Respond("git diff --numstat main", exec.Result{Stdout: "12\t3\ta.go\n0\t7\tb.go\n"}, nil)

	cs, err := r.DiffNumstat(context.Background(), "main")
	if err != nil {
		t.Fatalf("DiffNumstat() error = %v", err)
	}
	if cs.TotalSize() != 22 {
		t.Errorf("TotalSize() = %d, want 22", cs.TotalSize())
	}
}

func TestCommit(t *testing.T) {
	r, cr := newTestRepo()
	cr.Respond("git commit -m", exec.Result{}, nil)
	cr.Respond("git rev-parse HEAD", exec.Result{Stdout: "deadbeef\n"}, nil)

	sha, err := r.Commit(context.Background(), "task T1: parser")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if sha != "deadbeef" {
		t.Errorf("sha = %q", sha)
	}
}

func TestCommitFailure(t *testing.T) {
	r, cr := newTestRepo()
	cr.Respond("git commit -m", exec.Result{ExitCode: 1, Stderr: "nothing to commit"}, nil)

	_, err := r.Commit(context.Background(), "task T1: parser")
	if errors.GetCode(err) != errors.ECommitFailed {
		t.Errorf("Commit() = %v, want E_COMMIT_FAILED", err)
	}
}

func TestDiscardAll(t *testing.T) {
	r, cr := newTestRepo()
	if err := r.DiscardAll(context.Background()); err != nil {
		t.Fatalf("DiscardAll() error = %v", err)
	}

	lines := cr.CommandLines()
	if len(lines) != 2 || lines[0] != "git reset --hard" || lines[1] != "git clean -fd" {
		t.Errorf("commands = %v", lines)
	}
}

func TestRunnerDirPropagation(t *testing.T) {
	r, cr := newTestRepo()
	_, _ = r.HeadSHA(context.Background())

	if len(cr.Calls) != 1 || cr.Calls[0].Opts.Dir != "/repo" {
		t.Errorf("git not run in repo root: %+v", cr.Calls)
	}
}
