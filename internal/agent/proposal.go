// Package agent defines the external LLM capability boundary.
//
// The agent is a non-deterministic black box behind a single-method
// interface. Its output is never trusted: proposals are applied to an
// isolated branch and the resulting change-set is subjected to access
// control and the diff guard downstream.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// ProposedFile is one full-content file replacement in a proposal.
type ProposedFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// Proposal is the parsed agent response: file edits plus any blocking
// questions the agent raised instead of (or alongside) changes.
type Proposal struct {
	Files    []ProposedFile
	Problems []string
}

// proposalDoc is the YAML wire shape the agent must produce.
type proposalDoc struct {
	ProposedChanges []ProposedFile `yaml:"proposed_changes"`
	Problems        []string       `yaml:"problems"`
}

// ParseProposal parses an agent response into a Proposal.
// The response must be a YAML document with proposed_changes and problems;
// a fenced code block wrapper is tolerated and stripped. Anything else is
// E_AGENT_FAILED.
func ParseProposal(text string) (*Proposal, error) {
	text = stripFences(text)

	var doc proposalDoc
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, errors.Wrap(errors.EAgentFailed, "agent response is not valid YAML", err)
	}

	p := &Proposal{}
	for i, f := range doc.ProposedChanges {
		path := strings.TrimSpace(f.Path)
		if path == "" {
			return nil, errors.New(errors.EAgentFailed,
				fmt.Sprintf("proposed_changes[%d] is missing a path", i))
		}
		p.Files = append(p.Files, ProposedFile{Path: path, Content: f.Content})
	}
	for _, q := range doc.Problems {
		q = strings.TrimSpace(q)
		if q != "" {
			p.Problems = append(p.Problems, q)
		}
	}
	return p, nil
}

// Apply writes the proposal's files into the repo working tree and returns
// the written paths. Paths are confined to the repo root; absolute paths and
// traversal outside the root are E_PROPOSAL_REJECTED. Parent directories are
// created as needed.
func (p *Proposal) Apply(repoRoot string) ([]string, error) {
	var written []string
	for _, f := range p.Files {
		rel, err := safeRelPath(repoRoot, f.Path)
		if err != nil {
			return written, err
		}
		abs := filepath.Join(repoRoot, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return written, errors.WrapWithDetails(
				errors.EProposalRejected,
				"failed to create directory for proposed file",
				err,
				map[string]string{"path": f.Path},
			)
		}
		if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
			return written, errors.WrapWithDetails(
				errors.EProposalRejected,
				"failed to write proposed file",
				err,
				map[string]string{"path": f.Path},
			)
		}
		written = append(written, rel)
	}
	return written, nil
}

// safeRelPath normalizes a proposed path and rejects escapes from the root.
func safeRelPath(root, p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", errors.NewWithDetails(
			errors.EProposalRejected,
			fmt.Sprintf("proposed path %q is absolute", p),
			map[string]string{"path": p},
		)
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.NewWithDetails(
			errors.EProposalRejected,
			fmt.Sprintf("proposed path %q escapes the repo root", p),
			map[string]string{"path": p},
		)
	}
	return filepath.ToSlash(clean), nil
}

// stripFences removes a single markdown code fence wrapper, if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return text
	}
	// Drop the opening fence (possibly "```yaml") and a closing fence.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
