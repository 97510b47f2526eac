// Package lifecycle drives a single task through its staged lifecycle:
// branch creation, test generation, implementation, checks, and the final
// gated squash commit. Every transition attempt is recorded in the audit
// log; access control and the diff guard are consulted at each gate.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/conductor/internal/agent"
	"github.com/NielsdaWheelz/conductor/internal/audit"
	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/checks"
	"github.com/NielsdaWheelz/conductor/internal/config"
	"github.com/NielsdaWheelz/conductor/internal/diff"
	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/exec"
	"github.com/NielsdaWheelz/conductor/internal/fs"
	"github.com/NielsdaWheelz/conductor/internal/gitrepo"
	"github.com/NielsdaWheelz/conductor/internal/policy"
	"github.com/NielsdaWheelz/conductor/internal/session"
)

// BranchRecord is the persisted branch/commit record for a task.
// At most one branch and at most one commit exist per task.
type BranchRecord struct {
	TaskID  string `json:"task_id"`
	Branch  string `json:"branch"`
	BaseRev string `json:"base_rev"`
	Commit  string `json:"commit,omitempty"`
}

// Machine executes tasks one at a time. All collaborators are injected;
// stages run strictly in sequence, so no locking is needed around the graph
// or the repository.
type Machine struct {
	Session  *session.Session
	Graph    *backlog.Graph
	Repo     *gitrepo.Repo
	Agent    agent.Capability
	Checks   []config.Check
	CR       exec.CommandRunner
	Audit    *audit.Log
	Approver audit.Approver

	// Base is the integration base branch tasks branch off and return to.
	Base string

	// Facts is the project facts document injected into agent prompts.
	Facts string
}

// Execute drives one task to a terminal state and records the outcome in
// the backlog graph.
//
// The returned error is nil for every task-scoped outcome (including
// failures — those are reflected in the terminal state); it is non-nil only
// for session-fatal conditions such as audit log persistence failure.
func (m *Machine) Execute(ctx context.Context, t *backlog.Task) (backlog.State, error) {
	logDir := m.Session.TaskLogDir(t.ID)

	if t.Category == backlog.CategoryBootstrap {
		return m.executeBootstrap(ctx, t, logDir)
	}
	return m.executeRun(ctx, t, logDir)
}

// executeRun is the full pipeline: branch, tests, implementation, checks,
// gated commit.
func (m *Machine) executeRun(ctx context.Context, t *backlog.Task, logDir string) (backlog.State, error) {
	baseRev, term, err := m.createBranch(ctx, t)
	if term != "" || err != nil {
		return term, err
	}

	// Tester stage.
	testsProposal, term, err := m.agentStage(ctx, t, agentStageOpts{
		stage:   backlog.StateTestsGenerated,
		role:    policy.RoleTester,
		logDir:  logDir,
		logName: "tester",
	})
	if term != "" || err != nil {
		return term, err
	}

	// Developer stage sees the accepted tester proposal.
	devProposal, term, err := m.agentStage(ctx, t, agentStageOpts{
		stage:         backlog.StateImplemented,
		role:          policy.RoleDeveloper,
		logDir:        logDir,
		logName:       "developer",
		testsProposal: formatProposal(testsProposal),
	})
	if term != "" || err != nil {
		return term, err
	}

	term, err = m.runChecks(ctx, t, logDir)
	if term != "" || err != nil {
		return term, err
	}

	problems := append(collectProblems(testsProposal), collectProblems(devProposal)...)
	return m.commitGate(ctx, t, baseRev, problems)
}

// executeBootstrap is the reduced documentation-only pipeline.
func (m *Machine) executeBootstrap(ctx context.Context, t *backlog.Task, logDir string) (backlog.State, error) {
	baseRev, term, err := m.createBranch(ctx, t)
	if term != "" || err != nil {
		return term, err
	}

	docsProposal, term, err := m.agentStage(ctx, t, agentStageOpts{
		stage:   backlog.StateDocumentationEdited,
		role:    policy.RoleArchitect,
		logDir:  logDir,
		logName: "architect",
	})
	if term != "" || err != nil {
		return term, err
	}

	return m.commitGate(ctx, t, baseRev, collectProblems(docsProposal))
}

// createBranch performs Queued -> BranchCreated.
func (m *Machine) createBranch(ctx context.Context, t *backlog.Task) (baseRev string, term backlog.State, err error) {
	branch := t.BranchName()
	stage := backlog.StateBranchCreated

	ok, err := m.gate(t.ID, stage, map[string]any{"branch": branch, "base": m.Base})
	if err != nil {
		return "", "", err
	}
	if !ok {
		term, err = m.abort(ctx, t, stage, backlog.StateAborted, false,
			errors.New(errors.EOperatorRejected, "operator rejected branch creation"))
		return "", term, err
	}

	baseRev, gerr := m.Repo.HeadSHA(ctx)
	if gerr == nil {
		gerr = m.Repo.CreateBranch(ctx, branch, m.Base)
	}
	if gerr != nil {
		term, err = m.abort(ctx, t, stage, backlog.StateAborted, false, gerr)
		return "", term, err
	}

	if err := m.Graph.SetState(t.ID, stage); err != nil {
		return "", "", err
	}
	m.Session.Log.Info("branch created",
		zap.String("task", t.ID), zap.String("branch", branch))
	return baseRev, "", nil
}

type agentStageOpts struct {
	stage         backlog.State
	role          policy.Role
	logDir        string
	logName       string
	testsProposal string
}

// agentStage invokes the agent capability for one stage, applies the
// proposal to the branch, and authorizes the resulting change-set.
// The proposed change-set is evaluated by git after application, so the
// policy sees what actually changed, never what the agent claimed.
func (m *Machine) agentStage(ctx context.Context, t *backlog.Task, opts agentStageOpts) (*agent.Proposal, backlog.State, error) {
	tc := agent.TaskContext{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Facts:         m.Facts,
		TestsProposal: opts.testsProposal,
	}

	proposal, aerr := m.Agent.Propose(ctx, tc, opts.stage)
	if aerr != nil {
		term, err := m.abort(ctx, t, opts.stage, backlog.StateAborted, true, aerr)
		return nil, term, err
	}
	m.writeArtifact(opts.logDir, opts.logName+"_proposal.txt", formatProposal(proposal))

	if len(proposal.Files) == 0 {
		term, err := m.abort(ctx, t, opts.stage, backlog.StateAborted, true,
			errors.NewWithDetails(errors.EAgentFailed, "agent proposed no changes",
				map[string]string{"stage": string(opts.stage)}))
		return nil, term, err
	}

	written, perr := proposal.Apply(m.Session.RepoRoot)
	if perr != nil {
		term, err := m.abort(ctx, t, opts.stage, backlog.StateAborted, true, perr)
		return nil, term, err
	}
	if gerr := m.Repo.StageAll(ctx); gerr != nil {
		term, err := m.abort(ctx, t, opts.stage, backlog.StateAborted, true, gerr)
		return nil, term, err
	}

	full, gerr := m.Repo.DiffNumstat(ctx, m.Base)
	if gerr != nil {
		term, err := m.abort(ctx, t, opts.stage, backlog.StateAborted, true, gerr)
		return nil, term, err
	}

	// Authorization covers this stage's own change-set: the slice of the
	// accumulated diff touching paths the proposal wrote. Earlier stages'
	// files were already authorized under their own role.
	cs := stageChangeSet(full, written)

	if derr := m.Session.Policy.Authorize(m.Session.Mode, opts.role, opts.stage, cs); derr != nil {
		if _, err := m.Audit.Append(t.ID, string(opts.stage), audit.OutcomeRejected,
			audit.DenialData(derr.Error(), detailsOf(derr))); err != nil {
			return nil, "", err
		}
		term, err := m.abort(ctx, t, opts.stage, backlog.StateAborted, true, derr)
		return nil, term, err
	}

	ok, err := m.gate(t.ID, opts.stage, audit.ChangeSetData(cs.Summary(), cs.Paths()))
	if err != nil {
		return nil, "", err
	}
	if !ok {
		term, err := m.abort(ctx, t, opts.stage, backlog.StateAborted, true,
			errors.New(errors.EOperatorRejected,
				fmt.Sprintf("operator rejected stage %s", opts.stage)))
		return nil, term, err
	}

	if err := m.Graph.SetState(t.ID, opts.stage); err != nil {
		return nil, "", err
	}
	m.Session.Log.Info("stage accepted",
		zap.String("task", t.ID), zap.String("stage", string(opts.stage)),
		zap.String("changeset", cs.Summary()))
	return proposal, "", nil
}

// runChecks performs Implemented -> ChecksRunning -> ChecksPassed|ChecksFailed.
func (m *Machine) runChecks(ctx context.Context, t *backlog.Task, logDir string) (backlog.State, error) {
	if err := m.Graph.SetState(t.ID, backlog.StateChecksRunning); err != nil {
		return "", err
	}
	ok, err := m.gate(t.ID, backlog.StateChecksRunning, map[string]any{"checks": checkNames(m.Checks)})
	if err != nil {
		return "", err
	}
	if !ok {
		return m.abort(ctx, t, backlog.StateChecksRunning, backlog.StateAborted, true,
			errors.New(errors.EOperatorRejected, "operator rejected check execution"))
	}

	runner := &checks.Runner{
		Checks: m.Checks,
		CR:     m.CR,
		Dir:    m.Session.RepoRoot,
		LogDir: filepath.Join(logDir, "checks"),
	}
	results, cerr := runner.Run(ctx)

	// Every check outcome is recorded, pass or fail.
	for _, r := range results {
		outcome := audit.OutcomeApproved
		if !r.OK {
			outcome = audit.OutcomeRejected
		}
		if _, err := m.Audit.Append(t.ID, string(backlog.StateChecksRunning), outcome,
			audit.CheckData(r.Name, r.OK, r.DurationMS, r.Diagnostics)); err != nil {
			return "", err
		}
	}

	if cerr != nil {
		// Context cancellation: treated as a failed invocation, abort.
		return m.abort(ctx, t, backlog.StateChecksRunning, backlog.StateAborted, true,
			errors.Wrap(errors.ECheckFailed, "check execution cancelled", cerr))
	}

	if !checks.AllPassed(results) {
		first, _ := checks.FirstFailure(results)
		return m.abort(ctx, t, backlog.StateChecksRunning, backlog.StateChecksFailed, true,
			errors.NewWithDetails(errors.ECheckFailed,
				fmt.Sprintf("check %q failed", first.Name),
				map[string]string{
					"check":     first.Name,
					"exit_code": fmt.Sprintf("%d", first.ExitCode),
					"timed_out": fmt.Sprintf("%v", first.TimedOut),
					"log":       filepath.Join(logDir, "checks", first.Name+".log"),
				}))
	}

	if err := m.Graph.SetState(t.ID, backlog.StateChecksPassed); err != nil {
		return "", err
	}
	m.Session.Log.Info("checks passed", zap.String("task", t.ID))
	return "", nil
}

// commitGate performs the transition to Committed: bookkeeping, the diff
// guard over the full accumulated change-set, reviewer authorization and
// operator approval when interactive, then exactly one squash commit.
func (m *Machine) commitGate(ctx context.Context, t *backlog.Task, baseRev string, problems []string) (backlog.State, error) {
	// Gate entries carry the last in-progress stage of the task's own
	// pipeline; bootstrap tasks never pass through ChecksPassed.
	stage := backlog.StateChecksPassed
	if t.Category == backlog.CategoryBootstrap {
		stage = backlog.StateDocumentationEdited
	}

	// Orchestrator-authored bookkeeping rides in the task's single commit.
	if err := backlog.AppendDone(m.Session.RepoRoot, t.ID, t.Title); err != nil {
		return m.abort(ctx, t, stage, backlog.StateAborted, true, err)
	}
	if err := backlog.AppendProblems(m.Session.RepoRoot, t.ID, problems); err != nil {
		return m.abort(ctx, t, stage, backlog.StateAborted, true, err)
	}
	if gerr := m.Repo.StageAll(ctx); gerr != nil {
		return m.abort(ctx, t, stage, backlog.StateAborted, true, gerr)
	}

	full, gerr := m.Repo.DiffNumstat(ctx, m.Base)
	if gerr != nil {
		return m.abort(ctx, t, stage, backlog.StateAborted, true, gerr)
	}

	// The diff guard is re-evaluated here over the accumulated change-set:
	// stages individually under the cap can still exceed it together.
	// Denial is a hard stop; never auto-split or auto-trim.
	if derr := diff.Check(full, m.Session.DiffCap); derr != nil {
		if _, err := m.Audit.Append(t.ID, string(stage), audit.OutcomeRejected,
			audit.DenialData(derr.Error(), detailsOf(derr))); err != nil {
			return "", err
		}
		return m.abort(ctx, t, stage, backlog.StateAborted, true, derr)
	}

	// Reviewer authorization of what is about to be committed applies only
	// when interactive approval is enabled.
	if m.Session.Interactive {
		if derr := m.Session.Policy.Authorize(m.Session.Mode, policy.RoleReviewer, stage, full); derr != nil {
			if _, err := m.Audit.Append(t.ID, string(stage), audit.OutcomeRejected,
				audit.DenialData(derr.Error(), detailsOf(derr))); err != nil {
				return "", err
			}
			return m.abort(ctx, t, stage, backlog.StateAborted, true, derr)
		}
	}

	ok, err := m.gate(t.ID, stage, audit.ChangeSetData(full.Summary(), full.Paths()))
	if err != nil {
		return "", err
	}
	if !ok {
		return m.abort(ctx, t, stage, backlog.StateAborted, true,
			errors.New(errors.EOperatorRejected, "operator rejected commit"))
	}

	message := fmt.Sprintf("task %s: %s", t.ID, t.Title)
	sha, cerr := m.Repo.Commit(ctx, message)
	if cerr != nil {
		return m.abort(ctx, t, stage, backlog.StateAborted, true, cerr)
	}

	record := BranchRecord{TaskID: t.ID, Branch: t.BranchName(), BaseRev: baseRev, Commit: sha}
	if err := fs.WriteJSONAtomic(m.Session.RecordPath(t.ID), record, 0o644); err != nil {
		return "", errors.Wrap(errors.EStorageFailed, "failed to persist branch record", err)
	}

	if gerr := m.Repo.Checkout(ctx, m.Base); gerr != nil {
		return "", errors.Wrap(errors.EStorageFailed, "failed to return to base branch", gerr)
	}

	if err := m.Graph.MarkOutcome(t.ID, backlog.StateCommitted); err != nil {
		return "", err
	}
	if _, err := m.Audit.Append(t.ID, string(backlog.StateCommitted), audit.OutcomeCommitted,
		map[string]any{"commit": sha, "branch": t.BranchName(), "changeset": full.Summary()}); err != nil {
		return "", err
	}
	m.Session.Log.Info("task committed",
		zap.String("task", t.ID), zap.String("commit", sha))
	return backlog.StateCommitted, nil
}

// gate appends the proposed entry for a stage and resolves the approval:
// non-interactive sessions auto-approve; interactive sessions block on the
// operator. The decision is always recorded.
func (m *Machine) gate(taskID string, stage backlog.State, data map[string]any) (bool, error) {
	proposed, err := m.Audit.Append(taskID, string(stage), audit.OutcomeProposed, data)
	if err != nil {
		return false, err
	}

	approved := true
	if m.Session.Interactive {
		ok, aerr := m.Approver.AwaitApproval(proposed)
		if aerr != nil {
			m.Session.Log.Warn("operator channel failed; treating as rejection",
				zap.String("task", taskID), zap.String("stage", string(stage)))
			ok = false
		}
		approved = ok
	}

	outcome := audit.OutcomeApproved
	if !approved {
		outcome = audit.OutcomeRejected
	}
	if _, err := m.Audit.Append(taskID, string(stage), outcome, nil); err != nil {
		return false, err
	}
	return approved, nil
}

// abort drives the task to a terminal failure state, guaranteeing no
// partial state survives: uncommitted work is discarded, the base branch is
// restored, and the task branch (which never received a commit) is removed.
//
// The terminal audit entry records the precise state and reason. Returns
// the terminal state, or an error only if audit/storage persistence failed.
func (m *Machine) abort(ctx context.Context, t *backlog.Task, stage backlog.State, terminal backlog.State, branchCreated bool, cause error) (backlog.State, error) {
	if branchCreated {
		if err := m.Repo.DiscardAll(ctx); err != nil {
			m.Session.Log.Warn("failed to discard working tree during abort",
				zap.String("task", t.ID), zap.String("error", err.Error()))
		}
		if err := m.Repo.Checkout(ctx, m.Base); err != nil {
			return "", errors.Wrap(errors.EStorageFailed, "failed to return to base branch during abort", err)
		}
		if err := m.Repo.DeleteBranch(ctx, t.BranchName()); err != nil {
			m.Session.Log.Warn("failed to delete task branch during abort",
				zap.String("task", t.ID), zap.String("branch", t.BranchName()))
		}
	}

	if err := m.Graph.MarkOutcome(t.ID, terminal); err != nil {
		return "", err
	}

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	data := audit.TerminalData(string(terminal), reason)
	for k, v := range detailsOf(cause) {
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}
	if _, err := m.Audit.Append(t.ID, string(stage), audit.OutcomeAborted, data); err != nil {
		return "", err
	}

	m.Session.Log.Warn("task aborted",
		zap.String("task", t.ID), zap.String("stage", string(stage)), zap.String("reason", reason))
	return terminal, nil
}

// writeArtifact records a task artifact under the task log directory.
// Best-effort; artifacts supplement the audit log, they do not gate it.
func (m *Machine) writeArtifact(logDir, name, content string) {
	if logDir == "" {
		return
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(logDir, name), []byte(content), 0o644)
}

// stageChangeSet slices the accumulated diff down to the paths one
// proposal wrote.
func stageChangeSet(full diff.ChangeSet, written []string) diff.ChangeSet {
	mine := make(map[string]bool, len(written))
	for _, p := range written {
		mine[p] = true
	}
	var out diff.ChangeSet
	for _, fc := range full {
		if mine[fc.Path] {
			out = append(out, fc)
		}
	}
	return out
}

func detailsOf(err error) map[string]string {
	if ce, ok := errors.AsConductorError(err); ok {
		return ce.Details
	}
	return nil
}

func collectProblems(p *agent.Proposal) []string {
	if p == nil {
		return nil
	}
	return p.Problems
}

func checkNames(cs []config.Check) []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

// formatProposal renders a proposal for artifact logs and developer context.
func formatProposal(p *agent.Proposal) string {
	if p == nil {
		return ""
	}
	var sb strings.Builder
	for _, f := range p.Files {
		fmt.Fprintf(&sb, "=== %s ===\n%s\n", f.Path, f.Content)
	}
	if len(p.Problems) > 0 {
		sb.WriteString("problems:\n")
		for _, q := range p.Problems {
			fmt.Fprintf(&sb, "  - %s\n", q)
		}
	}
	return sb.String()
}
