package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// TaskContext is everything an agent invocation may see about the task.
type TaskContext struct {
	// ID, Title, Description identify and specify the task.
	ID          string
	Title       string
	Description string

	// Facts is the project facts document (docs/knowledge/facts.md).
	Facts string

	// TestsProposal is the tester's accepted proposal, shown to the
	// developer stage so the implementation targets the generated tests.
	TestsProposal string
}

// Capability is the external agent boundary: given task context and the
// stage being attempted, produce a proposal. Implementations must respect
// ctx cancellation; a timeout or error aborts the task, it is never retried
// here.
type Capability interface {
	Propose(ctx context.Context, tc TaskContext, stage backlog.State) (*Proposal, error)
}

// Role system prompts. The output contract (bare YAML, no fences) is shared;
// the path discipline differs per role and is enforced again by policy.
const (
	testerSystem = `You are Tester.
Rules:
- Be concise.
- Output MUST be valid YAML (no markdown, no code fences).
- Only propose changes in tests/ or docs/tests/.
- Prefer minimal tests that fail before and pass after implementation.`

	developerSystem = `You are Developer.
Rules:
- Be concise.
- Output MUST be valid YAML (no markdown, no code fences).
- You may propose changes to any files except tests/ and docs/tests/.
- Implement the task requirements to make the proposed tests pass.
- Focus on small, targeted changes that implement the specific functionality.
- Consider existing code structure and patterns.`

	architectSystem = `You are Architect.
Rules:
- Be concise.
- Output MUST be valid YAML (no markdown, no code fences).
- You may only propose changes under docs/.
- If requirements are unclear, add items to problems.`
)

// responseSchema is appended to every user prompt.
const responseSchema = `Return YAML:
proposed_changes:
  - path: <repo-relative path>
    content: |
      <full new file content>
problems: []`

// SystemPrompt returns the role system prompt for a stage.
func SystemPrompt(stage backlog.State) (string, error) {
	switch stage {
	case backlog.StateTestsGenerated:
		return testerSystem, nil
	case backlog.StateImplemented:
		return developerSystem, nil
	case backlog.StateDocumentationEdited:
		return architectSystem, nil
	}
	return "", errors.New(errors.EInternal, fmt.Sprintf("no agent role for stage %q", stage))
}

// UserPrompt renders the task context into the user prompt for a stage.
func UserPrompt(tc TaskContext, stage backlog.State) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Task:\nid: %s\ntitle: %s\ndescription: |\n", tc.ID, tc.Title)
	for _, line := range strings.Split(tc.Description, "\n") {
		fmt.Fprintf(&sb, "  %s\n", line)
	}

	if tc.Facts != "" {
		fmt.Fprintf(&sb, "\nProject facts:\n%s\n", tc.Facts)
	}

	switch stage {
	case backlog.StateTestsGenerated:
		sb.WriteString("\nPropose minimal tests for this task.\n")
	case backlog.StateImplemented:
		if tc.TestsProposal != "" {
			fmt.Fprintf(&sb, "\nProposed tests:\n%s\n", tc.TestsProposal)
		}
		sb.WriteString("\nImplement the task so the proposed tests pass. Do not modify test files.\n")
	case backlog.StateDocumentationEdited:
		sb.WriteString("\nUpdate the project documentation for this task.\n")
	}

	sb.WriteString("\n")
	sb.WriteString(responseSchema)
	return sb.String()
}
