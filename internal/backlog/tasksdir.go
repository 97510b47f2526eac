package backlog

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/fs"
)

// Project contract paths, relative to the target repo root. The target repo
// must carry these before any task executes.
const (
	FactsRelPath    = "docs/knowledge/facts.md"
	BacklogRelPath  = "docs/tasks/backlog.yaml"
	DoneRelPath     = "docs/tasks/done.yaml"
	ProblemsRelPath = "docs/tasks/problems.yaml"
)

// CheckContract verifies that the target repo satisfies the project contract.
// All missing paths are reported together; nothing is reported partially.
func CheckContract(repoRoot string) error {
	required := []string{FactsRelPath, BacklogRelPath, DoneRelPath, ProblemsRelPath}

	var missing []string
	for _, rel := range required {
		if _, err := os.Stat(filepath.Join(repoRoot, rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.NewWithDetails(
		errors.EContractBroken,
		"repo does not satisfy the orchestrator contract; missing: "+strings.Join(missing, ", "),
		map[string]string{"path": strings.Join(missing, ", ")},
	)
}

// ReadFacts returns the project facts document injected into agent prompts.
func ReadFacts(repoRoot string) (string, error) {
	data, err := os.ReadFile(filepath.Join(repoRoot, FactsRelPath))
	if err != nil {
		return "", errors.Wrap(errors.EContractBroken, "failed to read project facts", err)
	}
	return string(data), nil
}

// DoneEntry is one row in done.yaml.
type DoneEntry struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// ProblemEntry is one row in problems.yaml.
type ProblemEntry struct {
	Task     string `yaml:"task"`
	Question string `yaml:"question"`
	Blocking bool   `yaml:"blocking"`
}

// AppendDone records a committed task in done.yaml.
func AppendDone(repoRoot, taskID, title string) error {
	path := filepath.Join(repoRoot, DoneRelPath)
	var entries []DoneEntry
	if err := readYAMLList(path, &entries); err != nil {
		return err
	}
	entries = append(entries, DoneEntry{ID: taskID, Title: title})
	return writeYAMLList(path, entries)
}

// AppendProblems records agent-reported problems in problems.yaml.
// A no-op for an empty question list.
func AppendProblems(repoRoot, taskID string, questions []string) error {
	if len(questions) == 0 {
		return nil
	}
	path := filepath.Join(repoRoot, ProblemsRelPath)
	var entries []ProblemEntry
	if err := readYAMLList(path, &entries); err != nil {
		return err
	}
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		entries = append(entries, ProblemEntry{Task: taskID, Question: q, Blocking: true})
	}
	return writeYAMLList(path, entries)
}

func readYAMLList(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(errors.EStorageFailed, "failed to read "+filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.EStorageFailed, filepath.Base(path)+" is not valid YAML", err)
	}
	return nil
}

func writeYAMLList(path string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return errors.Wrap(errors.EStorageFailed, "failed to marshal "+filepath.Base(path), err)
	}
	if err := fs.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.Wrap(errors.EStorageFailed, "failed to write "+filepath.Base(path), err)
	}
	return nil
}
