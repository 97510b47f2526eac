package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// Replay folds an audit entry stream back into the terminal-state assignment
// of the recorded session: task ID to terminal lifecycle state.
//
// Replaying the log of a live run reconstructs the same assignment the run
// produced. Entries must be in seq order; a gap or regression means the log
// was tampered with or truncated mid-write and is rejected.
func Replay(r io.Reader) (map[string]backlog.State, error) {
	states := make(map[string]backlog.State)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastSeq int64
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, errors.Wrap(errors.EStorageFailed, "audit log contains a malformed entry", err)
		}
		if e.Seq != lastSeq+1 {
			return nil, errors.NewWithDetails(
				errors.EStorageFailed,
				fmt.Sprintf("audit log sequence gap or regression: %d after %d", e.Seq, lastSeq),
				map[string]string{"audit_seq": fmt.Sprintf("%d", e.Seq)},
			)
		}
		lastSeq = e.Seq

		if e.TaskID == "" {
			continue
		}

		switch e.Outcome {
		case OutcomeCommitted:
			states[e.TaskID] = backlog.StateCommitted
		case OutcomeAborted:
			// The terminal entry carries the precise state; fall back to
			// Aborted for older logs.
			state := backlog.StateAborted
			if s, ok := e.Data["state"].(string); ok && s != "" {
				state = backlog.State(s)
			}
			states[e.TaskID] = state
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.EStorageFailed, "failed to read audit log", err)
	}
	return states, nil
}

// ReplayFile replays the audit log at path.
func ReplayFile(path string) (map[string]backlog.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.EStorageFailed, "failed to open audit log", err)
	}
	defer func() { _ = f.Close() }()
	return Replay(f)
}
