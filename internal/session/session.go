// Package session defines the explicit per-session context.
//
// Session state (mode, interactive flag, policy, diff cap) is plain
// configuration passed into the scheduler and lifecycle at construction —
// never process-wide mutable state — so the pipeline stays testable and
// multiple sessions can coexist in-process.
package session

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/conductor/internal/policy"
)

// StateDirName is the conductor working directory inside the target repo.
const StateDirName = ".conductor"

// Session binds the process-wide context for one orchestration run.
// Initialized at session start, torn down at session end; nothing here is
// persisted beyond the audit trail.
type Session struct {
	// ID uniquely identifies the session in audit entries.
	ID string

	// RepoRoot is the absolute path of the target repository.
	RepoRoot string

	// Mode is bootstrap or run.
	Mode policy.Mode

	// Interactive enables operator approval gates.
	Interactive bool

	// Policy is the fixed role configuration for the session.
	Policy *policy.Policy

	// DiffCap is the maximum total changed-line count per task.
	DiffCap int

	// Log is the diagnostic logger.
	Log *zap.Logger

	// Now is the injectable clock.
	Now func() time.Time
}

// New creates a session with a fresh ID.
func New(repoRoot string, mode policy.Mode, interactive bool, pol *policy.Policy, diffCap int, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		ID:          uuid.NewString(),
		RepoRoot:    repoRoot,
		Mode:        mode,
		Interactive: interactive,
		Policy:      pol,
		DiffCap:     diffCap,
		Log:         log,
		Now:         time.Now,
	}
}

// StateDir returns the conductor state directory inside the repo.
func (s *Session) StateDir() string {
	return filepath.Join(s.RepoRoot, StateDirName)
}

// AuditLogPath returns the session's audit log file path.
func (s *Session) AuditLogPath() string {
	return filepath.Join(s.StateDir(), "audit.jsonl")
}

// TaskLogDir returns the artifact log directory for one task attempt,
// timestamped so operator re-invocations never collide.
func (s *Session) TaskLogDir(taskID string) string {
	ts := s.Now().UTC().Format("20060102_150405")
	return filepath.Join(s.StateDir(), "logs", "task_"+taskID, ts)
}

// RecordPath returns the branch/commit record path for a task.
func (s *Session) RecordPath(taskID string) string {
	return filepath.Join(s.StateDir(), "records", taskID+".json")
}
