package cobra

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/conductor/internal/agent"
	"github.com/NielsdaWheelz/conductor/internal/audit"
	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/config"
	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/exec"
	"github.com/NielsdaWheelz/conductor/internal/gitrepo"
	"github.com/NielsdaWheelz/conductor/internal/lifecycle"
	"github.com/NielsdaWheelz/conductor/internal/logging"
	"github.com/NielsdaWheelz/conductor/internal/policy"
	"github.com/NielsdaWheelz/conductor/internal/session"
)

// env is the assembled execution environment for a session command.
type env struct {
	Sess    *session.Session
	Cfg     config.Config
	Graph   *backlog.Graph
	Repo    *gitrepo.Repo
	Audit   *audit.Log
	Machine *lifecycle.Machine
	Base    string
}

// resolveRepoRoot resolves --repo (or the working directory) to an
// absolute path.
func resolveRepoRoot(repoFlag string) (string, error) {
	root := repoFlag
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(errors.EInternal, "failed to get working directory", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(errors.EInternal, "failed to resolve repo path", err)
	}
	return abs, nil
}

// preflight validates the target repository before any session work:
// it must be a git repo with a clean tree, carry the documentation
// contract, and have a valid conductor.yaml. Bootstrap mode relaxes the
// contract check, since establishing the contract is bootstrap's job.
func preflight(ctx context.Context, root string, cr exec.CommandRunner, mode policy.Mode) (*gitrepo.Repo, config.Config, error) {
	repo := gitrepo.New(root, cr)

	if !repo.IsRepo(ctx) {
		return nil, config.Config{}, errors.NewWithDetails(
			errors.ENoRepo, "not a git repository", map[string]string{"path": root})
	}

	clean, err := repo.IsClean(ctx)
	if err != nil {
		return nil, config.Config{}, err
	}
	if !clean {
		return nil, config.Config{}, errors.NewWithDetails(
			errors.EDirtyRepo,
			"working tree has uncommitted changes; commit or stash them first",
			map[string]string{"path": root})
	}

	if mode != policy.ModeBootstrap {
		if err := backlog.CheckContract(root); err != nil {
			return nil, config.Config{}, err
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, config.Config{}, err
	}
	return repo, cfg, nil
}

// buildEnv assembles the full session environment for run or bootstrap.
func buildEnv(ctx context.Context, repoFlag string, mode policy.Mode, interactive bool) (*env, error) {
	root, err := resolveRepoRoot(repoFlag)
	if err != nil {
		return nil, err
	}

	cr := exec.NewRealRunner()
	repo, cfg, err := preflight(ctx, root, cr, mode)
	if err != nil {
		return nil, err
	}

	graph, err := backlog.LoadFile(filepath.Join(root, cfg.Backlog))
	if err != nil {
		return nil, err
	}

	base, err := repo.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}

	log := logging.New(globalOpts.Verbose)
	sess := session.New(root, mode, interactive, cfg.Policy(), cfg.DiffCap, log)

	auditLog, err := audit.Open(sess.AuditLogPath(), sess.ID, sess.Now)
	if err != nil {
		return nil, err
	}

	capability, err := agent.NewAnthropicAgent(cfg.Agent.Model, cfg.Agent.MaxTokens, cfg.Agent.Timeout, "")
	if err != nil {
		return nil, err
	}

	facts, err := backlog.ReadFacts(root)
	if err != nil && mode != policy.ModeBootstrap {
		return nil, err
	}

	var approver audit.Approver = audit.AutoApprover{}
	if interactive {
		approver = &audit.TerminalApprover{In: os.Stdin, Out: os.Stderr}
	}

	machine := &lifecycle.Machine{
		Session:  sess,
		Graph:    graph,
		Repo:     repo,
		Agent:    capability,
		Checks:   cfg.Checks,
		CR:       cr,
		Audit:    auditLog,
		Approver: approver,
		Base:     base,
		Facts:    facts,
	}

	log.Info("session started",
		zap.String("session", sess.ID),
		zap.String("mode", string(mode)),
		zap.String("base", base),
		zap.Bool("interactive", interactive))

	return &env{
		Sess:    sess,
		Cfg:     cfg,
		Graph:   graph,
		Repo:    repo,
		Audit:   auditLog,
		Machine: machine,
		Base:    base,
	}, nil
}
