// Package openai provides an OpenAI-compatible LLM provider.
//
// Any service that speaks the chat completions protocol works: OpenAI,
// OpenRouter, local servers, and Gemini's OpenAI-compatible endpoint.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("GEMINI_API_KEY"),
//	    openai.WithBaseURL("https://generativelanguage.googleapis.com/v1beta/openai"),
//	    openai.WithModel("gemini-2.0-flash"),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	reply, err := provider.Complete(ctx, history)
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/entrhq/aqlmind/pkg/llm"
	"github.com/entrhq/aqlmind/pkg/llm/parser"
	"github.com/entrhq/aqlmind/pkg/types"
	"github.com/openai/openai-go"
)

// ErrEmptyCompletion is returned when a stream ends without reply text.
var ErrEmptyCompletion = errors.New("openai: completion contained no reply text")

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model option is given.
	DefaultModel = "gpt-4o"
)

// Provider implements the LLM provider interface for OpenAI-compatible APIs.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

var _ llm.Provider = (*Provider)(nil)

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for API requests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a new OpenAI provider with the given API key.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY environment variable.
// If baseURL is not provided via WithBaseURL option, it will check OPENAI_BASE_URL environment variable.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = strings.TrimRight(envBaseURL, "/")
		}
	}

	return p, nil
}

// StreamCompletion posts messages to the chat completions endpoint and
// streams back response chunks. Reasoning wrapped in <think> or <thinking>
// tags arrives as thinking chunks.
//
// The SSE body is read directly rather than through the SDK client so that
// comments and small format variations from compatible gateways are
// tolerated.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	body, err := p.post(ctx, messages)
	if err != nil {
		return nil, err
	}

	r := &sseReader{
		ctx:      ctx,
		out:      make(chan *llm.StreamChunk, 10),
		thinking: parser.NewThinkingParser(),
	}
	go r.run(body)
	return r.out, nil
}

type completionRequest struct {
	Model    string                                   `json:"model"`
	Messages []openai.ChatCompletionMessageParamUnion `json:"messages"`
	Stream   bool                                     `json:"stream"`
}

// post opens the streaming response. The caller owns the returned body.
func (p *Provider) post(ctx context.Context, messages []*types.Message) (io.ReadCloser, error) {
	payload, err := json.Marshal(completionRequest{
		Model:    p.model,
		Messages: convertToOpenAIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	defer resp.Body.Close()
	detail, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("API request failed with status %d (failed to read error body: %w)", resp.StatusCode, err)
	}
	return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}

// streamEvent is one decoded "data:" payload.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// sseReader turns an SSE body into StreamChunks on out.
type sseReader struct {
	ctx      context.Context
	out      chan *llm.StreamChunk
	thinking *parser.ThinkingParser
	role     string
}

func (r *sseReader) run(body io.ReadCloser) {
	defer close(r.out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		data, ok := dataField(scanner.Text())
		if !ok {
			continue
		}
		if data == "[DONE]" {
			if r.flush() {
				r.emit(&llm.StreamChunk{Finished: true})
			}
			return
		}
		if !r.handle(data) {
			return
		}
	}

	if !r.flush() {
		return
	}
	if err := scanner.Err(); err != nil {
		r.emit(&llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)})
	}
}

// handle processes one event and reports whether reading should continue.
func (r *sseReader) handle(data string) bool {
	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return true // gateways occasionally interleave non-JSON payloads
	}
	if ev.Error != nil {
		r.emit(&llm.StreamChunk{Error: fmt.Errorf("API stream error: %s", ev.Error.Message)})
		return false
	}
	if len(ev.Choices) == 0 {
		return true
	}

	choice := ev.Choices[0]
	var role string
	if r.role == "" && choice.Delta.Role != "" {
		r.role = choice.Delta.Role
		role = r.role
	}

	sent := false
	if choice.Delta.Content != "" {
		thinking, message := r.thinking.Parse(choice.Delta.Content)
		for _, c := range []*llm.StreamChunk{thinking, message} {
			if c == nil {
				continue
			}
			c.Role = role
			if !r.emit(c) {
				return false
			}
			sent = true
		}
	}

	switch {
	case choice.FinishReason != nil && *choice.FinishReason == "stop":
		return r.emit(&llm.StreamChunk{Role: role, Finished: true})
	case role != "" && !sent:
		return r.emit(&llm.StreamChunk{Role: role})
	}
	return true
}

// flush emits content the thinking parser is still holding back.
func (r *sseReader) flush() bool {
	thinking, message := r.thinking.Flush()
	for _, c := range []*llm.StreamChunk{thinking, message} {
		if c != nil && !r.emit(c) {
			return false
		}
	}
	return true
}

// emit delivers c unless the request context is done.
func (r *sseReader) emit(c *llm.StreamChunk) bool {
	select {
	case r.out <- c:
		return true
	case <-r.ctx.Done():
		select {
		case r.out <- &llm.StreamChunk{Error: r.ctx.Err()}:
		default:
		}
		return false
	}
}

// dataField returns the payload of an SSE "data:" line. Blank lines,
// comments and other fields are skipped.
func dataField(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

// Complete sends messages to the API and returns the full reply.
// Reasoning chunks are dropped; only reply text is accumulated.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	stream, err := p.StreamCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	var role string

	for chunk := range stream {
		if chunk.IsError() {
			return nil, chunk.Error
		}

		if chunk.Role != "" {
			role = chunk.Role
		}

		if !chunk.IsThinking() {
			content.WriteString(chunk.Content)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply := strings.TrimSpace(content.String())
	if reply == "" {
		return nil, ErrEmptyCompletion
	}

	if role == "" {
		role = string(types.RoleAssistant)
	}

	return &types.Message{
		Role:    types.MessageRole(role),
		Content: reply,
	}, nil
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// convertToOpenAIMessages converts our Message format to OpenAI's ChatCompletionMessageParamUnion format.
func convertToOpenAIMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		default:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}
