package diff

import (
	"strings"
	"testing"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

func TestParseNumstat(t *testing.T) {
	out := "10\t2\tinternal/engine/core.go\n" +
		"0\t5\tREADME.md\n" +
		"-\t-\tassets/logo.png\n"

	cs, err := ParseNumstat(out)
	if err != nil {
		t.Fatalf("ParseNumstat() error = %v", err)
	}
	if len(cs) != 3 {
		t.Fatalf("len = %d, want 3", len(cs))
	}

	if cs[0] != (FileChange{Path: "internal/engine/core.go", Added: 10, Removed: 2}) {
		t.Errorf("cs[0] = %+v", cs[0])
	}
	// Binary file: path retained, zero counts.
	if cs[2] != (FileChange{Path: "assets/logo.png"}) {
		t.Errorf("cs[2] = %+v", cs[2])
	}
	if cs.TotalSize() != 17 {
		t.Errorf("TotalSize() = %d, want 17", cs.TotalSize())
	}
}

func TestParseNumstatEmpty(t *testing.T) {
	cs, err := ParseNumstat("")
	if err != nil {
		t.Fatalf("ParseNumstat() error = %v", err)
	}
	if len(cs) != 0 {
		t.Errorf("len = %d, want 0", len(cs))
	}
}

func TestParseNumstatMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing fields", "10\tcore.go"},
		{"non-numeric added", "x\t2\tcore.go"},
		{"non-numeric removed", "2\tx\tcore.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseNumstat(tt.in); err == nil {
				t.Error("ParseNumstat() = nil error, want error")
			}
		})
	}
}

func TestParseNumstatPathWithTabs(t *testing.T) {
	// SplitN keeps everything after the second tab as the path.
	cs, err := ParseNumstat("1\t1\tweird\tname.go")
	if err != nil {
		t.Fatalf("ParseNumstat() error = %v", err)
	}
	if cs[0].Path != "weird\tname.go" {
		t.Errorf("Path = %q", cs[0].Path)
	}
}

func TestSummary(t *testing.T) {
	cs := ChangeSet{
		{Path: "a.go", Added: 120, Removed: 10},
		{Path: "b.go", Added: 0, Removed: 4},
		{Path: "c.go", Added: 0, Removed: 0},
	}
	want := "3 files, +120/-14 (134 lines)"
	if got := cs.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

func TestPaths(t *testing.T) {
	cs := ChangeSet{{Path: "b.go"}, {Path: "a.go"}}
	got := cs.Paths()
	if strings.Join(got, ",") != "b.go,a.go" {
		t.Errorf("Paths() = %v, order must follow the change-set", got)
	}
}

func TestCheck(t *testing.T) {
	mk := func(lines int) ChangeSet {
		return ChangeSet{{Path: "a.go", Added: lines}}
	}

	tests := []struct {
		name    string
		cs      ChangeSet
		cap     int
		wantErr bool
	}{
		{"within cap", mk(299), 300, false},
		{"exactly at cap", mk(300), 300, false},
		{"one over cap", mk(301), 300, true},
		{"empty change-set", nil, 300, false},
		{"zero cap uses default", mk(DefaultCap), 0, false},
		{"zero cap over default", mk(DefaultCap + 1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.cs, tt.cap)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if errors.GetCode(err) != errors.EDiffTooLarge {
					t.Errorf("code = %q, want E_DIFF_TOO_LARGE", errors.GetCode(err))
				}
				ce, _ := errors.AsConductorError(err)
				if ce.Details["actual"] == "" || ce.Details["cap"] == "" {
					t.Errorf("missing actual/cap details: %v", ce.Details)
				}
			}
		})
	}
}

func TestCheckAccumulated(t *testing.T) {
	// Two stages individually under the cap together exceed it.
	accumulated := ChangeSet{
		{Path: "tests/engine_test.go", Added: 250},
		{Path: "internal/engine/core.go", Added: 100},
	}
	err := Check(accumulated, 300)
	if errors.GetCode(err) != errors.EDiffTooLarge {
		t.Fatalf("Check() = %v, want E_DIFF_TOO_LARGE", err)
	}
}
