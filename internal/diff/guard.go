package diff

import (
	"fmt"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// Check accepts or rejects a change-set against the configured cap.
//
// Returns nil if the total changed-line count is within cap, or
// E_DIFF_TOO_LARGE with actual/cap recorded in details. cap <= 0 falls back
// to DefaultCap.
//
// Pure function; callers re-evaluate at the final pre-commit gate because
// cumulative edits across stages can exceed the cap even when each stage
// stayed within it.
func Check(cs ChangeSet, cap int) error {
	if cap <= 0 {
		cap = DefaultCap
	}
	actual := cs.TotalSize()
	if actual <= cap {
		return nil
	}
	return errors.NewWithDetails(
		errors.EDiffTooLarge,
		fmt.Sprintf("change-set is %d lines, cap is %d", actual, cap),
		map[string]string{
			"actual": fmt.Sprintf("%d", actual),
			"cap":    fmt.Sprintf("%d", cap),
		},
	)
}
