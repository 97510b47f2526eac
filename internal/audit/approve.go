package audit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// Approver answers the most recent proposed entry at a gated stage.
// Blocking is acceptable; the orchestrator is serialized around gates.
type Approver interface {
	// AwaitApproval returns true to approve, false to reject.
	// An error means the operator channel itself failed (treated as a
	// rejection by callers).
	AwaitApproval(e Entry) (bool, error)
}

// AutoApprover approves every gate. Used for non-interactive sessions.
type AutoApprover struct{}

func (AutoApprover) AwaitApproval(Entry) (bool, error) { return true, nil }

// TerminalApprover prompts the operator on the session terminal with the
// pending entry and reads a binary approve/reject decision.
type TerminalApprover struct {
	In  io.Reader
	Out io.Writer
}

// AwaitApproval prints the pending entry and loops until the operator
// answers "approve" (or "a") or "reject" (or "r"). EOF on the input channel
// is a rejection: an operator walking away must never auto-approve.
func (t *TerminalApprover) AwaitApproval(e Entry) (bool, error) {
	fmt.Fprintf(t.Out, "gate: task=%s stage=%s seq=%d\n", e.TaskID, e.Stage, e.Seq)
	if cs, ok := e.Data["changeset"]; ok {
		fmt.Fprintf(t.Out, "  %v\n", cs)
	}
	if paths, ok := e.Data["paths"].([]string); ok {
		for _, p := range paths {
			fmt.Fprintf(t.Out, "    %s\n", p)
		}
	}

	scanner := bufio.NewScanner(t.In)
	for {
		fmt.Fprint(t.Out, "decision (approve/reject): ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, errors.Wrap(errors.EInternal, "operator channel failed", err)
			}
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "approve", "a", "yes", "y":
			return true, nil
		case "reject", "r", "no", "n":
			return false, nil
		}
	}
}
