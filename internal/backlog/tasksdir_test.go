package backlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

func writeContract(t *testing.T, root string) {
	t.Helper()
	for _, rel := range []string{FactsRelPath, BacklogRelPath, DoneRelPath, ProblemsRelPath} {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCheckContract(t *testing.T) {
	root := t.TempDir()
	writeContract(t, root)

	if err := CheckContract(root); err != nil {
		t.Errorf("CheckContract() = %v, want nil", err)
	}
}

func TestCheckContractReportsAllMissing(t *testing.T) {
	root := t.TempDir()
	writeContract(t, root)
	if err := os.Remove(filepath.Join(root, FactsRelPath)); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, DoneRelPath)); err != nil {
		t.Fatal(err)
	}

	err := CheckContract(root)
	if errors.GetCode(err) != errors.EContractBroken {
		t.Fatalf("CheckContract() = %v, want E_CONTRACT_BROKEN", err)
	}
	// Every missing path is named, not just the first.
	msg := err.Error()
	if !strings.Contains(msg, FactsRelPath) || !strings.Contains(msg, DoneRelPath) {
		t.Errorf("missing paths not all reported: %q", msg)
	}
}

func TestReadFacts(t *testing.T) {
	root := t.TempDir()
	writeContract(t, root)
	if err := os.WriteFile(filepath.Join(root, FactsRelPath), []byte("# Facts\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	facts, err := ReadFacts(root)
	if err != nil {
		t.Fatalf("ReadFacts() error = %v", err)
	}
	if facts != "# Facts\n" {
		t.Errorf("facts = %q", facts)
	}
}

func TestAppendDone(t *testing.T) {
	root := t.TempDir()
	writeContract(t, root)

	if err := AppendDone(root, "T1", "parser"); err != nil {
		t.Fatalf("AppendDone() error = %v", err)
	}
	if err := AppendDone(root, "T2", "evaluator"); err != nil {
		t.Fatalf("AppendDone() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, DoneRelPath))
	if err != nil {
		t.Fatal(err)
	}
	var entries []DoneEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != "T1" || entries[1].ID != "T2" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAppendProblems(t *testing.T) {
	root := t.TempDir()
	writeContract(t, root)

	// Empty list is a no-op; the file keeps its original content.
	if err := AppendProblems(root, "T1", nil); err != nil {
		t.Fatalf("AppendProblems(empty) error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, ProblemsRelPath))
	if len(data) != 0 {
		t.Errorf("problems.yaml modified by empty append: %q", data)
	}

	if err := AppendProblems(root, "T1", []string{"which DB engine?", "  ", "auth scheme?"}); err != nil {
		t.Fatalf("AppendProblems() error = %v", err)
	}

	data, _ = os.ReadFile(filepath.Join(root, ProblemsRelPath))
	var entries []ProblemEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2 (blank questions dropped)", entries)
	}
	if entries[0].Task != "T1" || !entries[0].Blocking {
		t.Errorf("entries[0] = %+v", entries[0])
	}
}
