// Package policy implements the role/path access-control layer.
//
// A role carries a set of writable path patterns and the set of lifecycle
// stages it may trigger. Authorization is always evaluated against the
// proposed change-set, never against intent: every changed path must match
// at least one allowed pattern (and no denied pattern) for the acting role,
// or the stage transition fails.
package policy

import (
	"fmt"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/diff"
	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// Role is an access-control identity.
type Role string

const (
	RoleTester    Role = "tester"
	RoleDeveloper Role = "developer"
	RoleReviewer  Role = "reviewer"
	RoleArchitect Role = "architect" // bootstrap-only
)

// Mode is the session execution mode.
type Mode string

const (
	ModeRun       Mode = "run"
	ModeBootstrap Mode = "bootstrap"
)

// Rule defines what one role may touch and which stages it may trigger.
type Rule struct {
	// Allow is the set of writable path patterns. A change-set path must
	// match at least one of them.
	Allow []string

	// Deny is checked before Allow; a match fails authorization outright.
	Deny []string

	// Stages is the set of lifecycle stages the role may trigger.
	Stages []backlog.State
}

// Policy maps roles to rules. Role definitions are fixed configuration for
// the session; lookup is pure and never mutates them.
type Policy struct {
	rules map[Role]Rule

	// docsRoot is the documentation root every bootstrap change-set is
	// confined to, regardless of role.
	docsRoot string
}

// DefaultDocsRoot is the documentation root used when the project config
// does not override it.
const DefaultDocsRoot = "docs/"

// Default returns the built-in policy:
//
//	tester:    tests/ and docs/tests/ only; triggers TestsGenerated
//	developer: anything except tests/ and docs/tests/; triggers Implemented
//	reviewer:  all paths (final authorization only); triggers the commit
//	           gate stage (ChecksPassed, or DocumentationEdited in bootstrap)
//	architect: docsRoot only; triggers DocumentationEdited
func Default(docsRoot string) *Policy {
	if docsRoot == "" {
		docsRoot = DefaultDocsRoot
	}
	return &Policy{
		docsRoot: docsRoot,
		rules: map[Role]Rule{
			RoleTester: {
				Allow:  []string{"tests/", "docs/tests/"},
				Stages: []backlog.State{backlog.StateTestsGenerated},
			},
			RoleDeveloper: {
				Allow:  []string{"**"},
				Deny:   []string{"tests/", "docs/tests/"},
				Stages: []backlog.State{backlog.StateImplemented},
			},
			RoleReviewer: {
				Allow:  []string{"**"},
				Stages: []backlog.State{backlog.StateChecksPassed, backlog.StateDocumentationEdited},
			},
			RoleArchitect: {
				Allow:  []string{docsRoot},
				Stages: []backlog.State{backlog.StateDocumentationEdited},
			},
		},
	}
}

// Override replaces the rule for a role. Intended for construction-time
// configuration only; the returned policy is the receiver.
func (p *Policy) Override(role Role, rule Rule) *Policy {
	p.rules[role] = rule
	return p
}

// Rule returns the rule for a role.
func (p *Policy) Rule(role Role) (Rule, bool) {
	r, ok := p.rules[role]
	return r, ok
}

// DocsRoot returns the configured documentation root.
func (p *Policy) DocsRoot() string {
	return p.docsRoot
}

// Authorize decides whether role may trigger stage with the given proposed
// change-set under the given mode.
//
// Denied (E_ACCESS_DENIED) when:
//   - bootstrap mode and any path escapes the documentation root (checked
//     first, before any role-specific rule),
//   - the role's stage set excludes stage,
//   - any path in the change-set fails the role's patterns.
//
// The denial records the offending path, role, and stage in error details.
func (p *Policy) Authorize(mode Mode, role Role, stage backlog.State, cs diff.ChangeSet) error {
	if mode == ModeBootstrap {
		for _, fc := range cs {
			if !matchPattern(p.docsRoot, fc.Path) {
				return denied(role, stage, fc.Path,
					fmt.Sprintf("bootstrap mode confines changes to %s", p.docsRoot))
			}
		}
	}

	rule, ok := p.rules[role]
	if !ok {
		return denied(role, stage, "", fmt.Sprintf("unknown role %q", role))
	}

	if !stageAllowed(rule.Stages, stage) {
		return denied(role, stage, "",
			fmt.Sprintf("role %q is not authorized to trigger stage %q", role, stage))
	}

	for _, fc := range cs {
		for _, pat := range rule.Deny {
			if matchPattern(pat, fc.Path) {
				return denied(role, stage, fc.Path,
					fmt.Sprintf("path %q is denied for role %q by pattern %q", fc.Path, role, pat))
			}
		}
		allowed := false
		for _, pat := range rule.Allow {
			if matchPattern(pat, fc.Path) {
				allowed = true
				break
			}
		}
		if !allowed {
			return denied(role, stage, fc.Path,
				fmt.Sprintf("path %q matches no allowed pattern for role %q", fc.Path, role))
		}
	}

	return nil
}

func stageAllowed(stages []backlog.State, stage backlog.State) bool {
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

func denied(role Role, stage backlog.State, path, reason string) error {
	details := map[string]string{
		"role":  string(role),
		"stage": string(stage),
	}
	if path != "" {
		details["path"] = path
	}
	return errors.NewWithDetails(errors.EAccessDenied, reason, details)
}
