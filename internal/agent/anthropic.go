package agent

import (
	"context"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/NielsdaWheelz/conductor/internal/backlog"
	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// AnthropicAgent is the concrete Capability backed by the Anthropic
// Messages API. One call per stage; failures and timeouts are returned
// as E_AGENT_FAILED and never retried here.
type AnthropicAgent struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropicAgent creates an agent client.
// The ANTHROPIC_API_KEY environment variable takes precedence over apiKey.
func NewAnthropicAgent(model string, maxTokens int, timeout time.Duration, apiKey string) (*AnthropicAgent, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, errors.New(errors.EAgentFailed,
			"API key required: set ANTHROPIC_API_KEY")
	}
	return &AnthropicAgent{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		timeout:   timeout,
	}, nil
}

// Propose invokes the model once for the given stage and parses the
// response as a proposal.
func (a *AnthropicAgent) Propose(ctx context.Context, tc TaskContext, stage backlog.State) (*Proposal, error) {
	system, err := SystemPrompt(stage)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// The role rules ride at the top of the user turn; the response schema
	// is already part of UserPrompt.
	prompt := system + "\n\n" + UserPrompt(tc, stage)

	message, err := a.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, errors.WrapWithDetails(
				errors.EAgentFailed,
				"agent invocation timed out",
				err,
				map[string]string{"stage": string(stage), "timed_out": "true"},
			)
		}
		return nil, errors.WrapWithDetails(
			errors.EAgentFailed,
			"agent invocation failed",
			err,
			map[string]string{"stage": string(stage)},
		)
	}

	if len(message.Content) == 0 || message.Content[0].Type != "text" {
		return nil, errors.NewWithDetails(
			errors.EAgentFailed,
			"agent returned an unexpected response format",
			map[string]string{"stage": string(stage)},
		)
	}

	return ParseProposal(message.Content[0].Text)
}
