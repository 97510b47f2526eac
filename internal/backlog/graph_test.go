package backlog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

const validBacklog = `
- id: T1
  title: parser
  description: build the parser
- id: T2
  title: evaluator
  description: build the evaluator
  depends_on: [T1]
- id: T3
  title: docs
  description: write usage docs
  depends_on: [T1]
- id: B1
  title: establish contract
  category: bootstrap
`

func mustLoad(t *testing.T, data string) *Graph {
	t.Helper()
	g, err := Load([]byte(data))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return g
}

func TestLoadValid(t *testing.T) {
	g := mustLoad(t, validBacklog)

	if g.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", g.Len())
	}

	t2, ok := g.Get("T2")
	if !ok {
		t.Fatal("Get(T2) not found")
	}
	if t2.State != StateQueued {
		t.Errorf("initial state = %q, want queued", t2.State)
	}
	if t2.Category != CategoryRun {
		t.Errorf("default category = %q, want run", t2.Category)
	}
	if t2.BranchName() != "task/T2" {
		t.Errorf("BranchName() = %q", t2.BranchName())
	}

	b1, _ := g.Get("B1")
	if b1.Category != CategoryBootstrap {
		t.Errorf("B1 category = %q", b1.Category)
	}
	if b1.BranchName() != "bootstrap/B1" {
		t.Errorf("B1 BranchName() = %q", b1.BranchName())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		code errors.Code
	}{
		{"not yaml", "{{{", errors.EInvalidBacklog},
		{"empty", "", errors.EInvalidBacklog},
		{"missing id", "- title: x", errors.EInvalidBacklog},
		{"invalid id chars", "- id: \"a b\"", errors.EInvalidBacklog},
		{"leading dot id", "- id: .hidden", errors.EInvalidBacklog},
		{"duplicate id", "- id: T1\n- id: T1", errors.EInvalidBacklog},
		{"unknown dep", "- id: T1\n  depends_on: [T9]", errors.EInvalidBacklog},
		{"unknown category", "- id: T1\n  category: urgent", errors.EInvalidBacklog},
		{"self cycle", "- id: T1\n  depends_on: [T1]", errors.EBacklogCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data))
			if errors.GetCode(err) != tt.code {
				t.Errorf("Load() = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestLoadCycleReport(t *testing.T) {
	data := `
- id: A
  depends_on: [B]
- id: B
  depends_on: [C]
- id: C
  depends_on: [A]
`
	_, err := Load([]byte(data))
	if errors.GetCode(err) != errors.EBacklogCycle {
		t.Fatalf("Load() = %v, want E_BACKLOG_CYCLE", err)
	}

	ce, _ := errors.AsConductorError(err)
	cycle := ce.Details["cycle"]
	// The cycle is reported as an ordered walk ending where it started.
	if cycle == "" {
		t.Fatal("missing cycle detail")
	}
	parts := strings.Split(cycle, " -> ")
	if len(parts) != 4 || parts[0] != parts[len(parts)-1] {
		t.Errorf("cycle = %q, want closed walk of 3 tasks", cycle)
	}
}

func TestReadyOrderAndDeps(t *testing.T) {
	g := mustLoad(t, validBacklog)

	// Only T1 is ready among run tasks; B1 is bootstrap-only.
	if got := g.Ready(CategoryRun); len(got) != 1 || got[0] != "T1" {
		t.Fatalf("Ready(run) = %v, want [T1]", got)
	}
	if got := g.Ready(CategoryBootstrap); len(got) != 1 || got[0] != "B1" {
		t.Fatalf("Ready(bootstrap) = %v, want [B1]", got)
	}

	// Completing T1 unlocks T2 and T3 in declaration order.
	if err := g.MarkOutcome("T1", StateCommitted); err != nil {
		t.Fatal(err)
	}
	if got := g.Ready(CategoryRun); len(got) != 2 || got[0] != "T2" || got[1] != "T3" {
		t.Fatalf("Ready(run) = %v, want [T2 T3]", got)
	}
}

func TestFailedDependencyBlocks(t *testing.T) {
	data := `
- id: A
- id: B
  depends_on: [A]
- id: C
  depends_on: [B]
- id: D
`
	g := mustLoad(t, data)

	if err := g.MarkOutcome("A", StateChecksFailed); err != nil {
		t.Fatal(err)
	}

	// B and C are transitively blocked; D remains ready.
	if got := g.Ready(CategoryRun); len(got) != 1 || got[0] != "D" {
		t.Fatalf("Ready() = %v, want [D]", got)
	}
	blocked := g.Blocked(CategoryRun)
	if len(blocked) != 2 || blocked[0] != "B" || blocked[1] != "C" {
		t.Fatalf("Blocked() = %v, want [B C]", blocked)
	}
}

func TestBlockedDeepChain(t *testing.T) {
	// A linear chain deep enough that recursive traversal would be risky.
	var sb strings.Builder
	sb.WriteString("- id: T0\n")
	for i := 1; i <= 2000; i++ {
		fmt.Fprintf(&sb, "- id: T%d\n  depends_on: [T%d]\n", i, i-1)
	}
	g := mustLoad(t, sb.String())

	if err := g.MarkOutcome("T0", StateAborted); err != nil {
		t.Fatal(err)
	}
	if got := g.Blocked(CategoryRun); len(got) != 2000 {
		t.Fatalf("Blocked() returned %d tasks, want 2000", len(got))
	}
}

func TestMarkOutcomeRejectsNonTerminal(t *testing.T) {
	g := mustLoad(t, validBacklog)
	if err := g.MarkOutcome("T1", StateImplemented); err == nil {
		t.Error("MarkOutcome(non-terminal) = nil, want error")
	}
}

func TestSetStateUnknownTask(t *testing.T) {
	g := mustLoad(t, validBacklog)
	err := g.SetState("missing", StateBranchCreated)
	if errors.GetCode(err) != errors.ETaskNotFound {
		t.Errorf("SetState() = %v, want E_TASK_NOT_FOUND", err)
	}
}

func TestRemaining(t *testing.T) {
	g := mustLoad(t, validBacklog)
	if err := g.MarkOutcome("T1", StateCommitted); err != nil {
		t.Fatal(err)
	}
	got := g.Remaining(CategoryRun)
	if len(got) != 2 || got[0] != "T2" || got[1] != "T3" {
		t.Errorf("Remaining() = %v, want [T2 T3]", got)
	}
}

func TestStatePredicates(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
		success  bool
	}{
		{StateQueued, false, false},
		{StateBranchCreated, false, false},
		{StateChecksPassed, false, false},
		{StateCommitted, true, true},
		{StateChecksFailed, true, false},
		{StateAborted, true, false},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
		if got := tt.state.Success(); got != tt.success {
			t.Errorf("%s.Success() = %v, want %v", tt.state, got, tt.success)
		}
	}
}
