package scheduler

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/conductor/internal/audit"
	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/policy"
	"github.com/NielsdaWheelz/conductor/internal/session"
)

// fakeExecutor records execution order and maps tasks to scripted outcomes.
type fakeExecutor struct {
	graph    *backlog.Graph
	outcomes map[string]backlog.State
	errs     map[string]error
	order    []string
	running  bool
}

func (f *fakeExecutor) Execute(_ context.Context, t *backlog.Task) (backlog.State, error) {
	if f.running {
		panic("executor re-entered: scheduler must serialize")
	}
	f.running = true
	defer func() { f.running = false }()

	f.order = append(f.order, t.ID)
	if err := f.errs[t.ID]; err != nil {
		return "", err
	}

	state, ok := f.outcomes[t.ID]
	if !ok {
		state = backlog.StateCommitted
	}
	if err := f.graph.MarkOutcome(t.ID, state); err != nil {
		return "", err
	}
	return state, nil
}

func newScheduler(t *testing.T, data string, mode policy.Mode) (*Scheduler, *fakeExecutor) {
	t.Helper()
	g, err := backlog.Load([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	ex := &fakeExecutor{graph: g, outcomes: map[string]backlog.State{}, errs: map[string]error{}}
	sess := session.New(t.TempDir(), mode, false, policy.Default(""), 300, zap.NewNop())
	log, err := audit.Open(sess.AuditLogPath(), sess.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &Scheduler{Session: sess, Graph: g, Executor: ex, Audit: log}, ex
}

const diamondBacklog = `
- id: A
- id: B
  depends_on: [A]
- id: C
  depends_on: [A]
- id: D
  depends_on: [B, C]
`

func TestRunDrainsInDeclarationOrder(t *testing.T) {
	s, ex := newScheduler(t, diamondBacklog, policy.ModeRun)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantOrder := []string{"A", "B", "C", "D"}
	if len(ex.order) != len(wantOrder) {
		t.Fatalf("order = %v, want %v", ex.order, wantOrder)
	}
	for i, id := range wantOrder {
		if ex.order[i] != id {
			t.Fatalf("order = %v, want %v", ex.order, wantOrder)
		}
	}
	if len(sum.Committed) != 4 {
		t.Errorf("Committed = %v", sum.Committed)
	}
	if len(sum.Failed)+len(sum.Aborted)+len(sum.Blocked)+len(sum.Skipped) != 0 {
		t.Errorf("unexpected non-success buckets: %+v", sum)
	}
}

func TestRunFailureBlocksDependents(t *testing.T) {
	s, ex := newScheduler(t, diamondBacklog, policy.ModeRun)
	ex.outcomes["B"] = backlog.StateChecksFailed

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// C still runs (independent of B); D is permanently blocked.
	if len(sum.Committed) != 2 || sum.Committed[0] != "A" || sum.Committed[1] != "C" {
		t.Errorf("Committed = %v, want [A C]", sum.Committed)
	}
	if len(sum.Failed) != 1 || sum.Failed[0] != "B" {
		t.Errorf("Failed = %v, want [B]", sum.Failed)
	}
	if len(sum.Blocked) != 1 || sum.Blocked[0] != "D" {
		t.Errorf("Blocked = %v, want [D]", sum.Blocked)
	}
	for _, id := range ex.order {
		if id == "D" {
			t.Error("blocked task was executed")
		}
	}
}

func TestRunAbortedTaskBlocksDependentsToo(t *testing.T) {
	s, ex := newScheduler(t, `
- id: A
- id: B
  depends_on: [A]
`, policy.ModeRun)
	ex.outcomes["A"] = backlog.StateAborted

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sum.Aborted) != 1 || sum.Aborted[0] != "A" {
		t.Errorf("Aborted = %v", sum.Aborted)
	}
	if len(sum.Blocked) != 1 || sum.Blocked[0] != "B" {
		t.Errorf("Blocked = %v", sum.Blocked)
	}
}

func TestRunSessionFatalHalts(t *testing.T) {
	s, ex := newScheduler(t, `
- id: A
- id: B
`, policy.ModeRun)
	ex.errs["A"] = errors.New(errors.EStorageFailed, "audit log write failed")

	sum, err := s.Run(context.Background())
	if errors.GetCode(err) != errors.EStorageFailed {
		t.Fatalf("Run() = %v, want E_STORAGE_FAILED", err)
	}

	// B never ran; it is reported as skipped in the partial summary.
	if len(ex.order) != 1 {
		t.Errorf("order = %v, want [A]", ex.order)
	}
	found := false
	for _, id := range sum.Skipped {
		if id == "B" {
			found = true
		}
	}
	if !found {
		t.Errorf("Skipped = %v, want to include B", sum.Skipped)
	}
}

func TestRunTaskScopedErrorIsContained(t *testing.T) {
	s, ex := newScheduler(t, `
- id: A
- id: B
`, policy.ModeRun)
	ex.errs["A"] = errors.New(errors.EGitFailed, "git checkout failed")

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sum.Aborted) != 1 || sum.Aborted[0] != "A" {
		t.Errorf("Aborted = %v, want [A]", sum.Aborted)
	}
	if len(sum.Committed) != 1 || sum.Committed[0] != "B" {
		t.Errorf("Committed = %v, want [B]", sum.Committed)
	}

	// The abort recorded outside the state machine still replays to the
	// same terminal assignment.
	states, err := audit.ReplayFile(s.Session.AuditLogPath())
	if err != nil {
		t.Fatal(err)
	}
	if states["A"] != backlog.StateAborted {
		t.Errorf("replayed state for A = %q, want aborted", states["A"])
	}
}

func TestRunModeSelectsCategory(t *testing.T) {
	data := `
- id: T1
- id: B1
  category: bootstrap
`
	s, ex := newScheduler(t, data, policy.ModeBootstrap)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ex.order) != 1 || ex.order[0] != "B1" {
		t.Errorf("order = %v, want [B1]", ex.order)
	}
	if len(sum.Committed) != 1 || sum.Committed[0] != "B1" {
		t.Errorf("Committed = %v", sum.Committed)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, ex := newScheduler(t, "- id: A", policy.ModeRun)
	_, err := s.Run(ctx)
	if err == nil {
		t.Error("Run() = nil error after cancellation")
	}
	if len(ex.order) != 0 {
		t.Errorf("tasks ran after cancellation: %v", ex.order)
	}
}
