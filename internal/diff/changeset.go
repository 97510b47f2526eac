// Package diff defines the change-set model and the diff size guard.
package diff

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultCap is the maximum allowed total changed-line count per task.
const DefaultCap = 300

// FileChange describes the line-level delta for a single path.
type FileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// ChangeSet is an ordered sequence of per-path line-level diffs describing a
// proposed or realized change.
type ChangeSet []FileChange

// TotalSize returns the sum of added and removed lines across all paths.
func (cs ChangeSet) TotalSize() int {
	total := 0
	for _, fc := range cs {
		total += fc.Added + fc.Removed
	}
	return total
}

// Paths returns the changed paths in order.
func (cs ChangeSet) Paths() []string {
	paths := make([]string, 0, len(cs))
	for _, fc := range cs {
		paths = append(paths, fc.Path)
	}
	return paths
}

// Summary returns a one-line human-readable description, e.g.
// "3 files, +120/-14 (134 lines)".
func (cs ChangeSet) Summary() string {
	added, removed := 0, 0
	for _, fc := range cs {
		added += fc.Added
		removed += fc.Removed
	}
	return fmt.Sprintf("%d files, +%d/-%d (%d lines)", len(cs), added, removed, added+removed)
}

// ParseNumstat parses `git diff --numstat` output into a ChangeSet.
// Binary files are reported by git as "-\t-\t<path>" and are retained with
// zero line counts so path authorization still sees them.
func ParseNumstat(out string) (ChangeSet, error) {
	var cs ChangeSet
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed numstat line: %q", line)
		}

		fc := FileChange{Path: fields[2]}
		if fields[0] != "-" {
			added, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("malformed numstat added count: %q", line)
			}
			fc.Added = added
		}
		if fields[1] != "-" {
			removed, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("malformed numstat removed count: %q", line)
			}
			fc.Removed = removed
		}
		cs = append(cs, fc)
	}
	return cs, nil
}
