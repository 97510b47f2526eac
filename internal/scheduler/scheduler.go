// Package scheduler selects ready tasks and runs them strictly one at a
// time. Selection is deterministic: among ready tasks, declaration order
// wins. Concurrency is a non-feature here; serial execution is what makes
// the audit log a faithful linear history.
package scheduler

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/conductor/internal/audit"
	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/lifecycle"
	"github.com/NielsdaWheelz/conductor/internal/policy"
	"github.com/NielsdaWheelz/conductor/internal/session"
)

// Executor runs one task to a terminal state. Satisfied by
// *lifecycle.Machine.
type Executor interface {
	Execute(ctx context.Context, t *backlog.Task) (backlog.State, error)
}

var _ Executor = (*lifecycle.Machine)(nil)

// Summary is the end-of-session accounting.
type Summary struct {
	Committed []string
	Failed    []string
	Aborted   []string

	// Blocked lists tasks that can never become ready because a
	// dependency (direct or transitive) ended in failure.
	Blocked []string

	// Skipped lists tasks still queued when the session halted early.
	Skipped []string
}

// Scheduler drains the backlog for one session.
type Scheduler struct {
	Session  *session.Session
	Graph    *backlog.Graph
	Executor Executor
	Audit    *audit.Log
}

// Run executes ready tasks of the session's category until none remain.
// A task failure is contained: the failed task and everything depending on
// it are excluded, and independent tasks continue. Only session-fatal
// errors (audit persistence, unrecoverable repo state) halt the loop; the
// partial summary is still returned alongside the error.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	category := categoryFor(s.Session.Mode)

	for {
		if err := ctx.Err(); err != nil {
			s.finish(&sum, category)
			return sum, errors.Wrap(errors.EInternal, "session cancelled", err)
		}

		ready := s.Graph.Ready(category)
		if len(ready) == 0 {
			break
		}

		// Deterministic pick: Ready returns declaration order.
		id := ready[0]
		t, _ := s.Graph.Get(id)

		s.Session.Log.Info("task selected",
			zap.String("task", id), zap.String("title", t.Title))

		state, err := s.Executor.Execute(ctx, t)
		if err != nil {
			if errors.TaskScoped(err) {
				// Defensive: the machine normally converts task-scoped
				// failures into terminal states itself. The terminal entry
				// is still appended here so replaying the audit log yields
				// the same assignment the live run produced.
				s.Session.Log.Warn("task failed outside the state machine",
					zap.String("task", id), zap.String("error", err.Error()))
				if merr := s.Graph.MarkOutcome(id, backlog.StateAborted); merr != nil {
					s.finish(&sum, category)
					return sum, merr
				}
				if _, aerr := s.Audit.Append(id, "", audit.OutcomeAborted,
					audit.TerminalData(string(backlog.StateAborted), err.Error())); aerr != nil {
					s.finish(&sum, category)
					return sum, aerr
				}
				sum.Aborted = append(sum.Aborted, id)
				continue
			}
			s.Session.Log.Error("session-fatal failure",
				zap.String("task", id), zap.String("error", err.Error()))
			s.finish(&sum, category)
			return sum, err
		}

		switch state {
		case backlog.StateCommitted:
			sum.Committed = append(sum.Committed, id)
		case backlog.StateChecksFailed:
			sum.Failed = append(sum.Failed, id)
		case backlog.StateAborted:
			sum.Aborted = append(sum.Aborted, id)
		default:
			s.finish(&sum, category)
			return sum, errors.NewWithDetails(errors.EInternal,
				"task finished in a non-terminal state",
				map[string]string{"task_id": id, "state": string(state)})
		}
	}

	s.finish(&sum, category)

	if len(sum.Blocked) > 0 {
		s.Session.Log.Warn("tasks permanently blocked by failed dependencies",
			zap.String("tasks", strings.Join(sum.Blocked, ", ")))
	}
	return sum, nil
}

// finish fills in the blocked and skipped sets from the graph's final state.
func (s *Scheduler) finish(sum *Summary, category backlog.Category) {
	blocked := make(map[string]bool)
	for _, id := range s.Graph.Blocked(category) {
		blocked[id] = true
		sum.Blocked = append(sum.Blocked, id)
	}
	for _, id := range s.Graph.Remaining(category) {
		if !blocked[id] {
			sum.Skipped = append(sum.Skipped, id)
		}
	}
}

func categoryFor(mode policy.Mode) backlog.Category {
	if mode == policy.ModeBootstrap {
		return backlog.CategoryBootstrap
	}
	return backlog.CategoryRun
}
