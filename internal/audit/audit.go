// Package audit provides the append-only audit log for conductor sessions.
// Entries are stored in an append-only JSONL file; the full ordered sequence
// is sufficient to reconstruct, for any task, its exact stage history, every
// check outcome, and every access-control decision.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// SchemaVersion identifies the audit entry format.
const SchemaVersion = "1.0"

// Outcome is the result of a transition attempt.
type Outcome string

const (
	OutcomeProposed  Outcome = "proposed"
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCommitted Outcome = "committed"
	OutcomeAborted   Outcome = "aborted"
)

// Entry is a single audit record. Entries are immutable once appended and
// never reordered.
type Entry struct {
	SchemaVersion string         `json:"schema_version"`
	Seq           int64          `json:"seq"`
	Timestamp     string         `json:"timestamp"` // RFC3339
	SessionID     string         `json:"session_id"`
	TaskID        string         `json:"task_id,omitempty"` // empty for session-level events
	Stage         string         `json:"stage,omitempty"`
	Outcome       Outcome        `json:"outcome"`
	Data          map[string]any `json:"data,omitempty"`
}

// Log appends entries to a JSONL file with monotonically increasing sequence
// numbers. Append failure is E_STORAGE_FAILED and fatal for the session.
type Log struct {
	path      string
	sessionID string
	seq       int64
	now       func() time.Time
}

// Open creates an audit log writing to path. The file is created lazily on
// first append; the parent directory is created eagerly so storage problems
// surface at session start.
func Open(path, sessionID string, now func() time.Time) (*Log, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.EStorageFailed, "failed to create audit log directory", err)
	}
	return &Log{path: path, sessionID: sessionID, now: now}, nil
}

// Path returns the audit log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry and returns it with seq and timestamp filled in.
// taskID may be empty for session-level events.
func (l *Log) Append(taskID, stage string, outcome Outcome, data map[string]any) (Entry, error) {
	l.seq++
	e := Entry{
		SchemaVersion: SchemaVersion,
		Seq:           l.seq,
		Timestamp:     l.now().UTC().Format(time.RFC3339),
		SessionID:     l.sessionID,
		TaskID:        taskID,
		Stage:         stage,
		Outcome:       outcome,
		Data:          data,
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return e, errors.Wrap(errors.EStorageFailed, "failed to open audit log", err)
	}
	defer func() { _ = f.Close() }()

	line, err := json.Marshal(e)
	if err != nil {
		return e, errors.Wrap(errors.EStorageFailed, "failed to marshal audit entry", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return e, errors.Wrap(errors.EStorageFailed, "failed to append audit entry", err)
	}
	return e, nil
}

// DenialData returns the data map for an access-control or guard denial.
func DenialData(reason string, details map[string]string) map[string]any {
	data := map[string]any{"reason": reason}
	for k, v := range details {
		data[k] = v
	}
	return data
}

// ChangeSetData returns the data map describing a proposed change-set.
func ChangeSetData(summary string, paths []string) map[string]any {
	return map[string]any{
		"changeset": summary,
		"paths":     paths,
	}
}

// CheckData returns the data map for a single check outcome.
func CheckData(name string, ok bool, durationMS int64, diagnostics string) map[string]any {
	data := map[string]any{
		"check":       name,
		"ok":          ok,
		"duration_ms": durationMS,
	}
	if diagnostics != "" {
		const maxDiag = 2048
		if len(diagnostics) > maxDiag {
			diagnostics = diagnostics[:maxDiag]
		}
		data["diagnostics"] = diagnostics
	}
	return data
}

// TerminalData returns the data map for a task's terminal transition.
// The terminal state is recorded so replay can reconstruct the exact
// assignment, including ChecksFailed vs Aborted.
func TerminalData(state string, reason string) map[string]any {
	data := map[string]any{"state": state}
	if reason != "" {
		data["reason"] = reason
	}
	return data
}
