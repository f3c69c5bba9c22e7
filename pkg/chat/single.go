package chat

import (
	"context"
	"sync"

	"github.com/entrhq/aqlmind/pkg/session"
)

// SingleSession drives one implicit session for interactive front-ends.
// Loading a new page replaces the current session, but only once the new
// page has been fetched; a failed load keeps the previous conversation.
type SingleSession struct {
	svc *Service

	mu     sync.Mutex
	apiKey string
	id     string
}

// NewSingleSession creates a front-end view over svc with no page loaded.
func NewSingleSession(svc *Service, apiKey string) *SingleSession {
	return &SingleSession{svc: svc, apiKey: apiKey}
}

// SetAPIKey changes the credential used for the next Load.
func (s *SingleSession) SetAPIKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = apiKey
}

// Loaded reports whether a page is loaded.
func (s *SingleSession) Loaded() bool {
	return s.current() != ""
}

func (s *SingleSession) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Load fetches url and makes it the current session.
func (s *SingleSession) Load(ctx context.Context, url string) error {
	s.mu.Lock()
	apiKey := s.apiKey
	s.mu.Unlock()

	id, err := s.svc.Load(ctx, url, apiKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.id
	s.id = id
	s.mu.Unlock()

	if previous != "" {
		_ = s.svc.Delete(previous) // Already gone is fine
	}
	return nil
}

// Ask sends message in the current session. Without a loaded page it
// returns ErrSessionNotFound.
func (s *SingleSession) Ask(ctx context.Context, message string) (string, error) {
	id := s.current()
	if id == "" {
		return "", ErrSessionNotFound
	}
	return s.svc.Ask(ctx, id, message)
}

// Clear empties the current conversation and keeps the page.
func (s *SingleSession) Clear() error {
	id := s.current()
	if id == "" {
		return ErrSessionNotFound
	}
	_, err := s.svc.Clear(id)
	return err
}

// Snapshot returns the current session state.
func (s *SingleSession) Snapshot() (session.Snapshot, error) {
	id := s.current()
	if id == "" {
		return session.Snapshot{}, ErrSessionNotFound
	}
	return s.svc.Get(id)
}

// ContextTokens returns the size of the current history in tokens.
func (s *SingleSession) ContextTokens() (int, error) {
	id := s.current()
	if id == "" {
		return 0, ErrSessionNotFound
	}
	return s.svc.ContextTokens(id)
}
