package cobra

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/config"
	"github.com/NielsdaWheelz/conductor/internal/render"
)

func newBacklogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Inspect the task backlog",
	}
	cmd.AddCommand(newBacklogValidateCmd(), newBacklogLSCmd())
	return cmd
}

// loadBacklog resolves the backlog path via conductor.yaml when present,
// falling back to the default location so validation works before a config
// exists.
func loadBacklog(repoFlag string) (*backlog.Graph, error) {
	root, err := resolveRepoRoot(repoFlag)
	if err != nil {
		return nil, err
	}
	rel := backlog.BacklogRelPath
	if cfg, err := config.Load(root); err == nil {
		rel = cfg.Backlog
	}
	return backlog.LoadFile(filepath.Join(root, rel))
}

func newBacklogValidateCmd() *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse the backlog and report structural errors",
		Long: `Parse the backlog and report structural errors.
Rejects duplicate or malformed task IDs, references to unknown tasks, and
dependency cycles (reported with the cycle path). Exits zero only for a
well-formed acyclic backlog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadBacklog(repoPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backlog ok: %d task(s)\n", g.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "target a specific repo (default: current directory)")
	return cmd
}

func newBacklogLSCmd() *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List backlog tasks in declaration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadBacklog(repoPath)
			if err != nil {
				return err
			}
			render.BacklogTable(cmd.OutOrStdout(), g)
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "target a specific repo (default: current directory)")
	return cmd
}
