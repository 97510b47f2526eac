// Package errors defines the stable error code system for conductor.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract; scripts may match on them.
const (
	EUsage    Code = "E_USAGE"
	EInternal Code = "E_INTERNAL"

	// Repo / configuration error codes
	ENoRepo         Code = "E_NO_REPO"         // target path is not a git repository
	ENoConfig       Code = "E_NO_CONFIG"       // conductor.yaml not found
	EInvalidConfig  Code = "E_INVALID_CONFIG"  // conductor.yaml malformed or fails validation
	EDirtyRepo      Code = "E_DIRTY_REPO"      // working tree has uncommitted changes at session start
	EContractBroken Code = "E_CONTRACT_BROKEN" // repo is missing required docs contract files

	// Backlog error codes (session-fatal, nothing runs)
	EInvalidBacklog Code = "E_INVALID_BACKLOG" // malformed backlog or unknown dependency id
	EBacklogCycle   Code = "E_BACKLOG_CYCLE"   // dependency relation contains a cycle
	ETaskNotFound   Code = "E_TASK_NOT_FOUND"  // referenced task id does not exist

	// Task-scoped error codes (abort the offending task only)
	EAccessDenied     Code = "E_ACCESS_DENIED"      // role/path/mode violation on a proposed change-set
	EDiffTooLarge     Code = "E_DIFF_TOO_LARGE"     // accumulated diff exceeds the configured cap
	ECheckFailed      Code = "E_CHECK_FAILED"       // an automated check reported failure or timed out
	EAgentFailed      Code = "E_AGENT_FAILED"       // agent capability error, timeout, or unparseable proposal
	EOperatorRejected Code = "E_OPERATOR_REJECTED"  // explicit human rejection at a gated stage
	EBranchFailed     Code = "E_BRANCH_FAILED"      // task branch creation failed (e.g. name collision)
	EGitFailed        Code = "E_GIT_FAILED"         // a git primitive failed mid-task
	EProposalRejected Code = "E_PROPOSAL_REJECTED"  // proposal could not be applied to the worktree
	ECommitFailed     Code = "E_COMMIT_FAILED"      // squash commit failed at the final gate

	// Session-fatal persistence error codes
	EStorageFailed Code = "E_STORAGE_FAILED" // audit log or record persistence failure
)

// ConductorError is the standard error type for conductor errors.
type ConductorError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *ConductorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ConductorError) Unwrap() error {
	return e.Cause
}

// ExitCodeError wraps an error with an explicit process exit code.
type ExitCodeError struct {
	Err  error
	Code int
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func (e *ExitCodeError) ExitCode() int {
	return e.Code
}

// WithExitCode wraps err with a specific process exit code.
func WithExitCode(err error, code int) error {
	return &ExitCodeError{Err: err, Code: code}
}

// New creates a new ConductorError with the given code and message.
func New(code Code, msg string) error {
	return &ConductorError{Code: code, Msg: msg}
}

// NewWithDetails creates a new ConductorError with code, message, and details.
// Details map is defensively copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &ConductorError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new ConductorError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &ConductorError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new ConductorError wrapping an underlying error with details.
// Details map is defensively copied (nil if empty).
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &ConductorError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not a ConductorError.
func GetCode(err error) Code {
	var ce *ConductorError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// AsConductorError returns (*ConductorError, true) if err is or wraps a ConductorError.
func AsConductorError(err error) (*ConductorError, bool) {
	var ce *ConductorError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// TaskScoped reports whether err aborts only the offending task.
// Task-scoped errors are recovered at the scheduler level; everything else
// halts the session.
func TaskScoped(err error) bool {
	switch GetCode(err) {
	case EAccessDenied, EDiffTooLarge, ECheckFailed, EAgentFailed,
		EOperatorRejected, EBranchFailed, EGitFailed, EProposalRejected,
		ECommitFailed:
		return true
	}
	return false
}

// copyDetails returns a defensive copy of the details map, or nil if empty/nil.
func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the appropriate exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(interface{ ExitCode() int }); ok {
		return ec.ExitCode()
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var ce *ConductorError
	if errors.As(err, &ce) {
		_, _ = fmt.Fprintf(w, "error_code: %s\n", ce.Code)
		_, _ = fmt.Fprintln(w, ce.Msg)
	} else {
		// Fallback for non-ConductorError errors (should not happen in practice)
		_, _ = fmt.Fprintln(w, err.Error())
	}
}
