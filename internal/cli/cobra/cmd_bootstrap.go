package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/conductor/internal/policy"
)

func newBootstrapCmd() *cobra.Command {
	var repoPath string
	var interactive bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Run documentation-only bootstrap tasks via the architect role",
		Long: `Run documentation-only bootstrap tasks via the architect role.
Bootstrap tasks establish the docs contract (facts, backlog, done,
problems) before regular runs. Change-sets are confined to the docs root;
any path outside it is denied regardless of role rules.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, repoPath, policy.ModeBootstrap, interactive)
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "target a specific repo (default: current directory)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "require operator approval at each stage")

	return cmd
}
