package cobra

import (
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/conductor/internal/audit"
	"github.com/NielsdaWheelz/conductor/internal/render"
	"github.com/NielsdaWheelz/conductor/internal/session"
)

func newReplayCmd() *cobra.Command {
	var repoPath string
	var logPath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconstruct terminal task states from the audit log",
		Long: `Reconstruct terminal task states from the audit log.
Reads the append-only audit log and folds it into the final state of every
task it mentions. Replaying the same log always yields the same result;
a corrupt log (non-monotonic sequence numbers) is an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := logPath
			if path == "" {
				root, err := resolveRepoRoot(repoPath)
				if err != nil {
					return err
				}
				path = filepath.Join(root, session.StateDirName, "audit.jsonl")
			}

			states, err := audit.ReplayFile(path)
			if err != nil {
				return err
			}

			order := make([]string, 0, len(states))
			for id := range states {
				order = append(order, id)
			}
			sort.Strings(order)

			render.ReplayTable(cmd.OutOrStdout(), states, order)
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "target a specific repo (default: current directory)")
	cmd.Flags().StringVar(&logPath, "log", "", "audit log path (default: <repo>/.conductor/audit.jsonl)")

	return cmd
}
