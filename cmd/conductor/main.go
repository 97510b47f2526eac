// Command conductor is a serial task orchestrator for agent-driven
// repositories.
package main

import (
	"os"

	"github.com/NielsdaWheelz/conductor/internal/cli/cobra"
	"github.com/NielsdaWheelz/conductor/internal/errors"
)

func main() {
	err := cobra.Execute(os.Stdout, os.Stderr)
	if err != nil {
		// Use verbose mode if --verbose global flag was set
		opts := errors.PrintOptions{
			Verbose: cobra.GetGlobalOpts().Verbose,
		}
		errors.PrintWithOptions(os.Stderr, err, opts)
		os.Exit(errors.ExitCode(err))
	}
}
