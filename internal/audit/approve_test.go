package audit

import (
	"bytes"
	"strings"
	"testing"
)

func TestAutoApprover(t *testing.T) {
	ok, err := AutoApprover{}.AwaitApproval(Entry{TaskID: "T1"})
	if err != nil || !ok {
		t.Errorf("AwaitApproval() = %v, %v; want true, nil", ok, err)
	}
}

func TestTerminalApprover(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"approve", "approve\n", true},
		{"short approve", "a\n", true},
		{"yes", "yes\n", true},
		{"reject", "reject\n", false},
		{"short reject", "r\n", false},
		{"no", "n\n", false},
		{"case and whitespace", "  APPROVE  \n", true},
		{"garbage then decision", "what\nmaybe\nreject\n", false},
		{"eof rejects", "", false},
		{"garbage then eof rejects", "hmm\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			a := &TerminalApprover{In: strings.NewReader(tt.input), Out: &out}

			got, err := a.AwaitApproval(Entry{
				TaskID: "T1",
				Stage:  "checks_passed",
				Seq:    9,
				Data:   ChangeSetData("2 files, +10/-0 (10 lines)", []string{"a.go", "b.go"}),
			})
			if err != nil {
				t.Fatalf("AwaitApproval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AwaitApproval() = %v, want %v", got, tt.want)
			}

			prompt := out.String()
			if !strings.Contains(prompt, "task=T1") || !strings.Contains(prompt, "stage=checks_passed") {
				t.Errorf("prompt missing context: %q", prompt)
			}
		})
	}
}
