// Package chat implements loading a web page into a session and answering
// questions about it with an LLM.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/entrhq/aqlmind/pkg/fetch"
	"github.com/entrhq/aqlmind/pkg/llm"
	"github.com/entrhq/aqlmind/pkg/llm/tokens"
	"github.com/entrhq/aqlmind/pkg/logging"
	"github.com/entrhq/aqlmind/pkg/session"
	"github.com/entrhq/aqlmind/pkg/types"
)

const (
	DefaultFetchTimeout = 60 * time.Second
	DefaultLLMTimeout   = 120 * time.Second
)

// ProviderFactory builds an LLM provider for the credential stored with a
// session. An empty apiKey asks the factory for its configured default.
type ProviderFactory func(apiKey string) (llm.Provider, error)

// Service ties the session store to the page fetcher and the LLM.
type Service struct {
	store     *session.Store
	fetcher   fetch.Fetcher
	providers ProviderFactory
	guard     *fetch.URLGuard
	counter   *tokens.Counter
	logger    *logging.Logger

	fetchTimeout time.Duration
	llmTimeout   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithGuard screens URLs before they are fetched.
func WithGuard(guard *fetch.URLGuard) Option {
	return func(s *Service) {
		s.guard = guard
	}
}

// WithFetchTimeout bounds each page load. Zero or negative disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.fetchTimeout = d
	}
}

// WithLLMTimeout bounds each LLM call. Zero or negative disables the bound.
func WithLLMTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.llmTimeout = d
	}
}

// WithLogger sets the logger for load and chat activity.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTokenCounter replaces the default cl100k_base counter.
func WithTokenCounter(counter *tokens.Counter) Option {
	return func(s *Service) {
		s.counter = counter
	}
}

// NewService creates a service over store that loads pages with fetcher and
// answers with providers from the factory.
func NewService(store *session.Store, fetcher fetch.Fetcher, providers ProviderFactory, opts ...Option) *Service {
	s := &Service{
		store:        store,
		fetcher:      fetcher,
		providers:    providers,
		fetchTimeout: DefaultFetchTimeout,
		llmTimeout:   DefaultLLMTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard("chat")
	}
	if s.counter == nil {
		s.counter = tokens.NewCounter()
	}
	return s
}

// Load fetches the rendered page at url and creates a session grounded in
// it. apiKey is kept with the session and used for every later turn. Any
// failure is returned as a *FetchError and creates no session.
func (s *Service) Load(ctx context.Context, url, apiKey string) (string, error) {
	if err := s.guard.Check(url); err != nil {
		s.logger.Warnf("Rejected URL %q: %v", url, err)
		return "", &FetchError{URL: url, Err: err}
	}

	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.Errorf("Fetch of %s failed after %s: %v", url, time.Since(start).Round(time.Millisecond), err)
		return "", &FetchError{URL: url, Err: err}
	}

	sess := s.store.Create(url, page.Content, apiKey)
	s.logger.Infof("Loaded %s into session %s (%d bytes, title %q)", url, sess.ID(), len(page.Content), page.Title)
	return sess.ID(), nil
}

// Ask sends message to the LLM together with the session's full history and
// returns the reply. On failure the session is unchanged.
func (s *Service) Ask(ctx context.Context, sessionID, message string) (string, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}

	provider, err := s.providers(sess.APIKey())
	if err != nil {
		s.logger.Errorf("Session %s: provider setup failed: %v", sessionID, err)
		return "", &LLMError{SessionID: sessionID, Err: err}
	}

	reply, err := sess.Exchange(message, func(history []*types.Message) (string, error) {
		s.logger.Debugf("Session %s: sending %d messages to %s", sessionID, len(history), provider.GetModel())

		callCtx := ctx
		if s.llmTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.llmTimeout)
			defer cancel()
		}

		resp, err := provider.Complete(callCtx, history)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	})
	if err != nil {
		s.logger.Errorf("Session %s: LLM call failed: %v", sessionID, err)
		return "", &LLMError{SessionID: sessionID, Err: err}
	}

	s.logger.Infof("Session %s: answered (%d chars)", sessionID, len(reply))
	return reply, nil
}

// Clear removes every turn from a session but keeps its page.
func (s *Service) Clear(sessionID string) (session.Snapshot, error) {
	snap, err := s.store.Clear(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	s.logger.Infof("Session %s: cleared", sessionID)
	return snap, nil
}

// Delete removes a session entirely.
func (s *Service) Delete(sessionID string) error {
	if err := s.store.Delete(sessionID); err != nil {
		return err
	}
	s.logger.Infof("Session %s: deleted", sessionID)
	return nil
}

// Get returns a snapshot of a session.
func (s *Service) Get(sessionID string) (session.Snapshot, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// ContextTokens returns the token count of the history that the next turn
// would send, excluding the next user message. Counting runs on a copy of
// the history, so it never holds the session lock.
func (s *Service) ContextTokens(sessionID string) (int, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return 0, err
	}
	return s.counter.CountMessages(sess.History()), nil
}

// Sessions returns the number of live sessions.
func (s *Service) Sessions() int {
	return s.store.Len()
}
