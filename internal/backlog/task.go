// Package backlog parses task declarations into a validated dependency graph
// and owns per-task lifecycle status for the session.
package backlog

// Category says which scheduler mode a task runs under.
type Category string

const (
	// CategoryRun is a full-pipeline task (tests, implementation, checks).
	CategoryRun Category = "run"

	// CategoryBootstrap is a documentation-only task driven by the
	// architect role.
	CategoryBootstrap Category = "bootstrap"
)

// State is a task lifecycle state.
type State string

// Lifecycle states. Queued is initial; Committed, Aborted, and ChecksFailed
// are terminal for the session (retry is an explicit operator re-invocation,
// never an internal loop).
const (
	StateQueued              State = "queued"
	StateBranchCreated       State = "branch_created"
	StateTestsGenerated      State = "tests_generated"
	StateImplemented         State = "implemented"
	StateChecksRunning       State = "checks_running"
	StateChecksPassed        State = "checks_passed"
	StateDocumentationEdited State = "documentation_edited"
	StateCommitted           State = "committed"
	StateChecksFailed        State = "checks_failed"
	StateAborted             State = "aborted"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateCommitted, StateChecksFailed, StateAborted:
		return true
	}
	return false
}

// Success reports whether s is the terminal success state.
func (s State) Success() bool {
	return s == StateCommitted
}

// Task is the smallest schedulable unit of work, producing at most one commit.
type Task struct {
	// ID is the stable task identifier, used for branch naming.
	ID string

	// Title is a short human-readable summary.
	Title string

	// Description is the full task text handed to the agent.
	Description string

	// DependsOn lists task IDs that must be Committed before this task
	// becomes ready.
	DependsOn []string

	// Category selects the scheduler mode this task is eligible under.
	Category Category

	// State is the current lifecycle state. Mutated only by the lifecycle
	// state machine and the scheduler.
	State State

	// index is the declaration position, used as the deterministic
	// scheduling tie-break.
	index int
}

// BranchName returns the isolated branch name for the task:
// "task/<ID>" for run tasks, "bootstrap/<ID>" for bootstrap tasks.
func (t *Task) BranchName() string {
	if t.Category == CategoryBootstrap {
		return "bootstrap/" + t.ID
	}
	return "task/" + t.ID
}
