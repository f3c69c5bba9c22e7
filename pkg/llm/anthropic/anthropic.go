// Package anthropic provides an LLM provider backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/entrhq/aqlmind/pkg/llm"
	"github.com/entrhq/aqlmind/pkg/types"
)

const (
	// DefaultModel is used when no model option is given.
	DefaultModel = string(anthropic.ModelClaudeSonnet4_5)

	// DefaultMaxTokens bounds the length of each reply.
	DefaultMaxTokens = 4096
)

// Provider implements llm.Provider on top of the Anthropic SDK client.
type Provider struct {
	client    anthropic.Client
	baseURL   string
	model     string
	maxTokens int64
}

var _ llm.Provider = (*Provider)(nil)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL points the client at a non-default API host.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewProvider creates a provider for the given API key, falling back to
// ANTHROPIC_API_KEY when apiKey is empty.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (provide via parameter or ANTHROPIC_API_KEY environment variable)")
	}

	p := &Provider{
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = anthropic.NewClient(clientOpts...)

	return p, nil
}

// Complete sends the history to the Messages API and returns the reply.
// System entries are lifted into the request's system block.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	system, params := convertMessages(messages)
	if len(params) == 0 {
		return nil, fmt.Errorf("anthropic: at least one user message is required")
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  params,
	}
	if len(system) > 0 {
		req.System = system
	}

	resp, err := p.client.Messages.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		text.WriteString(block.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: empty response")
	}

	return types.NewAssistantMessage(text.String()), nil
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

func convertMessages(messages []*types.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	params := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case types.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case types.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(block))
		default:
			params = append(params, anthropic.NewUserMessage(block))
		}
	}

	return system, params
}
