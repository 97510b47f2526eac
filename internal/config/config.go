// Package config handles loading and validation of conductor.yaml project
// configuration files.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/diff"
	"github.com/NielsdaWheelz/conductor/internal/errors"
	"github.com/NielsdaWheelz/conductor/internal/policy"
)

// FileName is the project config file at the target repo root.
const FileName = "conductor.yaml"

// Default timeouts for external invocations.
const (
	DefaultCheckTimeout = 10 * time.Minute
	DefaultAgentTimeout = 5 * time.Minute
	MinTimeout          = 10 * time.Second
	MaxTimeout          = 24 * time.Hour
)

// DefaultAgentModel is the model used when the config does not name one.
const DefaultAgentModel = "claude-3-5-haiku-latest"

// Check is one automated check command, run in declaration order.
type Check struct {
	Name    string        `yaml:"name"`
	Cmd     []string      `yaml:"cmd"`
	Timeout time.Duration `yaml:"timeout"`
}

// Agent configures the LLM capability.
type Agent struct {
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RoleRule overrides the path patterns of a built-in role. The stages a
// role may trigger are fixed and never configurable.
type RoleRule struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// Config is the parsed and validated conductor.yaml.
type Config struct {
	Version  int                 `yaml:"version"`
	Backlog  string              `yaml:"backlog"`
	DocsRoot string              `yaml:"docs_root"`
	DiffCap  int                 `yaml:"diff_cap"`
	Agent    Agent               `yaml:"agent"`
	Checks   []Check             `yaml:"checks"`
	Roles    map[string]RoleRule `yaml:"roles"`
}

// Load reads and validates conductor.yaml from the repo root.
// Returns E_NO_CONFIG if the file does not exist and E_INVALID_CONFIG if it
// fails strict parsing (unknown fields are rejected) or semantic validation.
func Load(repoRoot string) (Config, error) {
	path := filepath.Join(repoRoot, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errors.NewWithDetails(
				errors.ENoConfig,
				FileName+" not found at repo root",
				map[string]string{"path": path},
			)
		}
		return Config{}, errors.Wrap(errors.ENoConfig, "failed to read "+FileName, err)
	}

	return Parse(data)
}

// Parse parses and validates config bytes.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(errors.EInvalidConfig, FileName+" is not valid: "+err.Error(), err)
	}

	if cfg.Version != 1 {
		return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("unsupported version %d (want 1)", cfg.Version))
	}

	// Defaults
	if cfg.Backlog == "" {
		cfg.Backlog = backlog.BacklogRelPath
	}
	if cfg.DocsRoot == "" {
		cfg.DocsRoot = policy.DefaultDocsRoot
	}
	if cfg.DiffCap == 0 {
		cfg.DiffCap = diff.DefaultCap
	}
	if cfg.DiffCap < 0 {
		return Config{}, errors.New(errors.EInvalidConfig, "diff_cap must be positive")
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultAgentModel
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Agent.MaxTokens < 0 {
		return Config{}, errors.New(errors.EInvalidConfig, "agent.max_tokens must be positive")
	}
	if cfg.Agent.Timeout == 0 {
		cfg.Agent.Timeout = DefaultAgentTimeout
	}
	if err := validateTimeout("agent.timeout", cfg.Agent.Timeout); err != nil {
		return Config{}, err
	}

	if len(cfg.Checks) == 0 {
		return Config{}, errors.New(errors.EInvalidConfig, "at least one check is required")
	}
	seen := make(map[string]bool, len(cfg.Checks))
	for i := range cfg.Checks {
		c := &cfg.Checks[i]
		if c.Name == "" {
			return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("checks[%d] has no name", i))
		}
		if seen[c.Name] {
			return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("duplicate check name %q", c.Name))
		}
		seen[c.Name] = true
		if len(c.Cmd) == 0 {
			return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("check %q has an empty cmd", c.Name))
		}
		for _, arg := range c.Cmd {
			if arg == "" {
				return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("check %q has an empty cmd argument", c.Name))
			}
		}
		if c.Timeout == 0 {
			c.Timeout = DefaultCheckTimeout
		}
		if err := validateTimeout(fmt.Sprintf("check %q timeout", c.Name), c.Timeout); err != nil {
			return Config{}, err
		}
	}

	for name, rr := range cfg.Roles {
		switch policy.Role(name) {
		case policy.RoleTester, policy.RoleDeveloper, policy.RoleReviewer, policy.RoleArchitect:
		default:
			return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("unknown role %q", name))
		}
		if len(rr.Allow) == 0 && len(rr.Deny) == 0 {
			return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("role %q override is empty", name))
		}
		for _, pat := range rr.Allow {
			if pat == "" {
				return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("role %q has an empty allow pattern", name))
			}
		}
		for _, pat := range rr.Deny {
			if pat == "" {
				return Config{}, errors.New(errors.EInvalidConfig, fmt.Sprintf("role %q has an empty deny pattern", name))
			}
		}
	}

	// The docs root must be a directory prefix so the bootstrap override
	// and the architect rule agree on its meaning.
	if cfg.DocsRoot[len(cfg.DocsRoot)-1] != '/' {
		cfg.DocsRoot += "/"
	}

	return cfg, nil
}

// Policy builds the session access-control policy: the built-in rules for
// the configured docs root, with any role overrides applied on top. An
// override replaces only the pattern lists it names.
func (c Config) Policy() *policy.Policy {
	p := policy.Default(c.DocsRoot)
	for name, rr := range c.Roles {
		role := policy.Role(name)
		rule, _ := p.Rule(role)
		if len(rr.Allow) > 0 {
			rule.Allow = append([]string(nil), rr.Allow...)
		}
		if len(rr.Deny) > 0 {
			rule.Deny = append([]string(nil), rr.Deny...)
		}
		p.Override(role, rule)
	}
	return p
}

func validateTimeout(field string, d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return errors.New(errors.EInvalidConfig,
			fmt.Sprintf("%s must be between %s and %s", field, MinTimeout, MaxTimeout))
	}
	return nil
}
