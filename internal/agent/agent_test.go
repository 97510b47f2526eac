package agent

import (
	"strings"
	"testing"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
)

func TestSystemPrompt(t *testing.T) {
	tests := []struct {
		stage   backlog.State
		keyword string
	}{
		{backlog.StateTestsGenerated, "Tester"},
		{backlog.StateImplemented, "Developer"},
		{backlog.StateDocumentationEdited, "Architect"},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			got, err := SystemPrompt(tt.stage)
			if err != nil {
				t.Fatalf("SystemPrompt() error = %v", err)
			}
			if !strings.Contains(got, tt.keyword) {
				t.Errorf("prompt for %s missing %q", tt.stage, tt.keyword)
			}
		})
	}

	if _, err := SystemPrompt(backlog.StateChecksRunning); err == nil {
		t.Error("SystemPrompt(checks_running) = nil error, want error")
	}
}

func TestUserPrompt(t *testing.T) {
	tc := TaskContext{
		ID:          "T1",
		Title:       "parser",
		Description: "build the parser\nwith error recovery",
		Facts:       "language: Go",
	}

	got := UserPrompt(tc, backlog.StateTestsGenerated)
	for _, want := range []string{"id: T1", "title: parser", "build the parser", "language: Go", "proposed_changes:"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Proposed tests:") {
		t.Error("tester prompt must not carry a tests proposal")
	}
}

func TestUserPromptDeveloperSeesTests(t *testing.T) {
	tc := TaskContext{
		ID:            "T1",
		Title:         "parser",
		Description:   "build the parser",
		TestsProposal: "=== tests/parser_test.go ===",
	}

	got := UserPrompt(tc, backlog.StateImplemented)
	if !strings.Contains(got, "Proposed tests:") || !strings.Contains(got, "tests/parser_test.go") {
		t.Errorf("developer prompt missing tests proposal:\n%s", got)
	}
	if !strings.Contains(got, "Do not modify test files.") {
		t.Error("developer prompt missing test-file restriction")
	}
}
