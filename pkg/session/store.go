package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an id the store does not hold.
var ErrNotFound = errors.New("session not found")

// Store holds sessions in memory, keyed by id. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// issued remembers every id ever handed out so none is reused after Delete.
	issued map[string]struct{}

	newID func() string
	now   func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithClock replaces time.Now for session timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		issued:   make(map[string]struct{}),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new session grounded in content and returns it.
func (s *Store) Create(sourceURL, content, apiKey string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, taken := s.issued[id]; !taken {
			break
		}
		id = s.newID()
	}
	s.issued[id] = struct{}{}

	sess := newSession(id, sourceURL, content, apiKey, s.now)
	s.sessions[id] = sess
	return sess
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Clear empties the conversation of a session, keeping its page content,
// and returns the resulting state.
func (s *Store) Clear(id string) (Snapshot, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.reset(), nil
}

// Delete removes a session. Its id stays reserved.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
