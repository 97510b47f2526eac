package exec

import (
	"context"
	"fmt"
	"strings"
)

// StubCall records a single invocation made against a StubRunner.
type StubCall struct {
	Name string
	Args []string
	Opts RunOpts
}

// StubRunner is a scripted CommandRunner for tests.
//
// Responses are matched by command line prefix ("git diff", "go test", ...);
// the first matching response is consumed unless Sticky is set. Unmatched
// commands succeed with empty output so tests only script what they assert.
type StubRunner struct {
	Calls     []StubCall
	responses []stubResponse
}

type stubResponse struct {
	prefix string
	result Result
	err    error
	sticky bool
	used   bool
}

// NewStubRunner creates an empty stub runner.
func NewStubRunner() *StubRunner {
	return &StubRunner{}
}

// Respond registers a one-shot response for commands whose "name args..."
// line starts with prefix.
func (s *StubRunner) Respond(prefix string, result Result, err error) {
	s.responses = append(s.responses, stubResponse{prefix: prefix, result: result, err: err})
}

// RespondSticky registers a response that matches any number of times.
func (s *StubRunner) RespondSticky(prefix string, result Result, err error) {
	s.responses = append(s.responses, stubResponse{prefix: prefix, result: result, err: err, sticky: true})
}

// Run records the call and returns the first matching scripted response.
func (s *StubRunner) Run(_ context.Context, name string, args []string, opts RunOpts) (Result, error) {
	s.Calls = append(s.Calls, StubCall{Name: name, Args: append([]string(nil), args...), Opts: opts})

	line := name
	if len(args) > 0 {
		line = fmt.Sprintf("%s %s", name, strings.Join(args, " "))
	}

	for i := range s.responses {
		r := &s.responses[i]
		if r.used && !r.sticky {
			continue
		}
		if strings.HasPrefix(line, r.prefix) {
			r.used = true
			return r.result, r.err
		}
	}

	return Result{ExitCode: 0}, nil
}

// CommandLines returns the recorded calls as "name args..." strings.
func (s *StubRunner) CommandLines() []string {
	lines := make([]string, 0, len(s.Calls))
	for _, c := range s.Calls {
		line := c.Name
		if len(c.Args) > 0 {
			line = fmt.Sprintf("%s %s", c.Name, strings.Join(c.Args, " "))
		}
		lines = append(lines, line)
	}
	return lines
}
