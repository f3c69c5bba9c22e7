package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/aqlmind/pkg/fetch"
	"github.com/entrhq/aqlmind/pkg/llm"
	"github.com/entrhq/aqlmind/pkg/llm/tokens"
	"github.com/entrhq/aqlmind/pkg/session"
	"github.com/entrhq/aqlmind/pkg/types"
)

// stubProvider answers from a function and records what it was sent.
type stubProvider struct {
	mu      sync.Mutex
	calls   [][]*types.Message
	respond func(ctx context.Context, history []*types.Message) (string, error)
}

func replyWith(text string) *stubProvider {
	return &stubProvider{respond: func(context.Context, []*types.Message) (string, error) {
		return text, nil
	}}
}

func failWith(err error) *stubProvider {
	return &stubProvider{respond: func(context.Context, []*types.Message) (string, error) {
		return "", err
	}}
}

func (p *stubProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	p.mu.Lock()
	p.calls = append(p.calls, types.CloneMessages(messages))
	p.mu.Unlock()

	text, err := p.respond(ctx, messages)
	if err != nil {
		return nil, err
	}
	return types.NewAssistantMessage(text), nil
}

func (p *stubProvider) GetModel() string { return "stub-model" }

func (p *stubProvider) lastCall() []*types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

// staticPages serves fixed HTML per URL and fails for anything else.
func staticPages(pages map[string]string) fetch.Fetcher {
	return fetch.FetcherFunc(func(_ context.Context, url string) (*fetch.Page, error) {
		html, ok := pages[url]
		if !ok {
			return nil, errors.New("net::ERR_NAME_NOT_RESOLVED")
		}
		return &fetch.Page{URL: url, FinalURL: url, Content: html, StatusCode: 200}, nil
	})
}

// fixedProvider hands out provider for every key and records the keys.
type fixedProvider struct {
	mu       sync.Mutex
	provider llm.Provider
	keys     []string
}

func (f *fixedProvider) factory(apiKey string) (llm.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, apiKey)
	return f.provider, nil
}

func newTestService(pages map[string]string, provider llm.Provider, opts ...Option) (*Service, *session.Store, *fixedProvider) {
	store := session.NewStore()
	providers := &fixedProvider{provider: provider}
	opts = append([]Option{WithTokenCounter(tokens.NewEstimatingCounter())}, opts...)
	return NewService(store, staticPages(pages), providers.factory, opts...), store, providers
}
