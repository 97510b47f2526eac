package cobra

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/conductor/internal/policy"
	"github.com/NielsdaWheelz/conductor/internal/render"
	"github.com/NielsdaWheelz/conductor/internal/scheduler"
)

func newRunCmd() *cobra.Command {
	var repoPath string
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drain the backlog: execute ready run tasks one at a time",
		Long: `Drain the backlog: execute ready run tasks one at a time.
Defaults to the current directory; use --repo to target a different repo.
Requires a clean working tree, the docs contract, and conductor.yaml.
With --interactive, every stage and the final commit block on operator
approval; without it, gates auto-approve and only policy, the diff cap,
and the checks stand between a proposal and its commit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, repoPath, policy.ModeRun, interactive)
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "target a specific repo (default: current directory)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "require operator approval at each stage")

	return cmd
}

// runSession is the shared body of run and bootstrap.
func runSession(cmd *cobra.Command, repoPath string, mode policy.Mode, interactive bool) error {
	stdout := cmd.OutOrStdout()
	ctx := context.Background()

	e, err := buildEnv(ctx, repoPath, mode, interactive)
	if err != nil {
		return err
	}
	defer func() { _ = e.Sess.Log.Sync() }()

	sched := &scheduler.Scheduler{
		Session:  e.Sess,
		Graph:    e.Graph,
		Executor: e.Machine,
		Audit:    e.Audit,
	}

	sum, runErr := sched.Run(ctx)
	render.SessionSummary(stdout, sum)
	return runErr
}
