// Package cobra provides the Cobra-based CLI command tree for conductor.
package cobra

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/conductor/internal/version"
)

// GlobalOpts holds global options parsed before subcommand dispatch.
type GlobalOpts struct {
	Verbose bool
}

// globalOpts stores the parsed global options for access by subcommands.
var globalOpts GlobalOpts

// GetGlobalOpts returns the parsed global options.
func GetGlobalOpts() GlobalOpts {
	return globalOpts
}

// NewRootCmd creates the root cobra command for conductor.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conductor",
		Short: "Serial task orchestrator for agent-driven repositories",
		Long: `conductor - serial task orchestrator for agent-driven repositories

Conductor drains a declarative task backlog one task at a time. Each task
runs on an isolated branch: an agent proposes tests and an implementation,
the change-set is authorized against role and path rules and a diff size
cap, the project's checks run, and the result lands as a single commit.
Every decision is recorded in an append-only audit log.`,
		Version:       version.FullVersion(),
		SilenceErrors: true, // We handle error printing in main.go
		SilenceUsage:  true, // We handle usage printing manually
	}

	rootCmd.PersistentFlags().BoolVar(&globalOpts.Verbose, "verbose", false, "show detailed error context")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newRunCmd(),
		newBootstrapCmd(),
		newBacklogCmd(),
		newReplayCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
// This is the main entry point from main.go.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
