// Package errors provides error formatting for conductor CLI output.
package errors

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// PrintOptions controls error output formatting.
type PrintOptions struct {
	// Verbose enables detailed error output with more context keys.
	Verbose bool
}

// Context key whitelist (default mode, in print order).
var defaultContextKeys = []string{
	"op",
	"task_id",
	"stage",
	"role",
	"mode",
	"path",
	"branch",
	"base",
	"check",
	"command",
	"exit_code",
	"actual",
	"cap",
	"cycle",
	"log",
}

// Additional context keys printed in verbose mode.
var verboseContextKeys = []string{
	"op",
	"task_id",
	"stage",
	"role",
	"mode",
	"path",
	"pattern",
	"branch",
	"base",
	"commit",
	"check",
	"command",
	"exit_code",
	"actual",
	"cap",
	"cycle",
	"blocked",
	"duration_ms",
	"timed_out",
	"log",
	"audit_seq",
	"hint",
}

const (
	maxValueLen      = 256 // Max chars for single-line context values
	maxExtraValueLen = 128 // Max chars for extra section values
)

// Format formats an error for display without I/O.
// This is a pure function; it never reads files or performs network I/O.
func Format(err error, opts PrintOptions) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	ce, ok := AsConductorError(err)
	if !ok {
		sb.WriteString(err.Error())
		sb.WriteString("\n")
		return sb.String()
	}

	// Line 1: error_code
	sb.WriteString("error_code: ")
	sb.WriteString(string(ce.Code))
	sb.WriteString("\n")

	// Line 2: message
	sb.WriteString(ce.Msg)
	sb.WriteString("\n")

	// Blank line before context
	sb.WriteString("\n")

	contextKeys := defaultContextKeys
	if opts.Verbose {
		contextKeys = verboseContextKeys
	}

	printedKeys := make(map[string]bool)

	for _, key := range contextKeys {
		if ce.Details == nil {
			continue
		}
		val, ok := ce.Details[key]
		if !ok || val == "" {
			continue
		}
		// Hint is printed separately at the end.
		if key == "hint" {
			continue
		}
		printedKeys[key] = true
		sb.WriteString(key)
		sb.WriteString(": ")
		sb.WriteString(sanitizeValue(val, maxValueLen))
		sb.WriteString("\n")
	}

	// In verbose mode, print remaining keys under an extra: section.
	if opts.Verbose && ce.Details != nil {
		var extraKeys []string
		for key := range ce.Details {
			if !printedKeys[key] && key != "hint" && key != "stderr" {
				extraKeys = append(extraKeys, key)
			}
		}
		if len(extraKeys) > 0 {
			sort.Strings(extraKeys)
			sb.WriteString("\nextra:\n")
			for _, key := range extraKeys {
				val := ce.Details[key]
				if val == "" {
					continue
				}
				sb.WriteString("  ")
				sb.WriteString(key)
				sb.WriteString(": ")
				sb.WriteString(sanitizeValue(val, maxExtraValueLen))
				sb.WriteString("\n")
			}
		}
	}

	// Hint line (if present)
	if hint := GetHint(ce); hint != "" {
		sb.WriteString("\n")
		sb.WriteString(FormatHint(hint))
		sb.WriteString("\n")
	}

	for _, try := range deriveTryLines(ce) {
		sb.WriteString("try: ")
		sb.WriteString(try)
		sb.WriteString("\n")
	}

	return sb.String()
}

// PrintWithOptions writes a formatted error to w with the given options.
func PrintWithOptions(w io.Writer, err error, opts PrintOptions) {
	if err == nil {
		return
	}
	_, _ = io.WriteString(w, Format(err, opts))
}

// sanitizeValue sanitizes a value for single-line context output.
// - Trims trailing whitespace first
// - Normalizes CRLF to LF
// - Replaces newlines with literal \n
// - Truncates to maxLen chars
func sanitizeValue(val string, maxLen int) string {
	val = strings.TrimRight(val, " \t\r\n")
	val = strings.ReplaceAll(val, "\r\n", "\n")
	val = strings.ReplaceAll(val, "\n", "\\n")
	if len(val) > maxLen {
		return val[:maxLen] + "…"
	}
	return val
}

// deriveTryLines returns actionable suggestions based on error code.
func deriveTryLines(ce *ConductorError) []string {
	if ce == nil {
		return nil
	}

	var lines []string

	switch ce.Code {
	case EDirtyRepo:
		lines = append(lines, "git status")
	case ENoConfig:
		lines = append(lines, "create conductor.yaml at the repo root")
	case ECheckFailed:
		if ce.Details != nil {
			if log := ce.Details["log"]; log != "" {
				lines = append(lines, fmt.Sprintf("cat %s", log))
			}
		}
	case EBacklogCycle:
		lines = append(lines, "break the reported dependency cycle in docs/tasks/backlog.yaml")
	case EAgentFailed:
		lines = append(lines, "check ANTHROPIC_API_KEY and re-run the task")
	}

	return lines
}

// FormatHint formats a hint for output.
// If hint already starts with "hint:", returns as-is.
// Otherwise prepends "hint: ".
func FormatHint(hint string) string {
	if hint == "" {
		return ""
	}
	if strings.HasPrefix(hint, "hint:") {
		return hint
	}
	return "hint: " + hint
}

// GetHint extracts the hint from an error's details, if present.
func GetHint(err error) string {
	ce, ok := AsConductorError(err)
	if !ok || ce.Details == nil {
		return ""
	}
	return ce.Details["hint"]
}
