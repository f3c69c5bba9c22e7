// Package session keeps the in-memory chat sessions, each grounded in the
// content of one web page.
package session

import (
	"sync"
	"time"

	"github.com/entrhq/aqlmind/pkg/types"
)

// systemPromptPrefix precedes the page content in the first history entry.
const systemPromptPrefix = "You have to answer the question based on the content of the page: "

// SystemPrompt builds the system entry that grounds every turn in content.
func SystemPrompt(content string) string {
	return systemPromptPrefix + content
}

// Entry is one line of the visible conversation.
type Entry struct {
	Role types.MessageRole `json:"role"`
	Text string            `json:"text"`
}

// ReplyFunc produces the assistant reply for the given history, which
// already ends with the pending user message.
type ReplyFunc func(history []*types.Message) (string, error)

// Session is a conversation about one loaded page. The transcript is what the
// user sees; the history is what the LLM receives and always starts with the
// system entry holding the page content.
type Session struct {
	id        string
	sourceURL string
	content   string
	apiKey    string
	now       func() time.Time

	mu         sync.Mutex
	transcript []Entry
	history    []*types.Message
	createdAt  time.Time
	updatedAt  time.Time
}

func newSession(id, sourceURL, content, apiKey string, now func() time.Time) *Session {
	ts := now()
	return &Session{
		id:        id,
		sourceURL: sourceURL,
		content:   content,
		apiKey:    apiKey,
		now:       now,
		history:   []*types.Message{types.NewSystemMessage(SystemPrompt(content))},
		createdAt: ts,
		updatedAt: ts,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SourceURL returns the URL the session was loaded from.
func (s *Session) SourceURL() string { return s.sourceURL }

// Content returns the grounding page content.
func (s *Session) Content() string { return s.content }

// APIKey returns the LLM credential captured when the page was loaded.
func (s *Session) APIKey() string { return s.apiKey }

// History returns a copy of the messages sent to the LLM on the next turn,
// minus the next user message.
func (s *Session) History() []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneMessages(s.history)
}

// Exchange runs one chat turn as a single critical section: the user message
// is appended to transcript and history, reply is called with the full
// history, and the reply is appended to both. When reply fails the user
// message is removed again so the session is left exactly as it was.
func (s *Session) Exchange(userText string, reply ReplyFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcriptLen, historyLen := len(s.transcript), len(s.history)

	s.transcript = append(s.transcript, Entry{Role: types.RoleUser, Text: userText})
	s.history = append(s.history, types.NewUserMessage(userText))

	answer, err := reply(types.CloneMessages(s.history))
	if err != nil {
		s.transcript = s.transcript[:transcriptLen]
		s.history = s.history[:historyLen]
		return "", err
	}

	s.transcript = append(s.transcript, Entry{Role: types.RoleAssistant, Text: answer})
	s.history = append(s.history, types.NewAssistantMessage(answer))
	s.updatedAt = s.now()
	return answer, nil
}

// reset drops every turn while keeping the page content and the system entry.
func (s *Session) reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = nil
	s.history = s.history[:1]
	s.updatedAt = s.now()
	return s.snapshotLocked()
}

// Snapshot is a point-in-time deep copy of a session.
type Snapshot struct {
	ID         string
	SourceURL  string
	Content    string
	Transcript []Entry
	History    []*types.Message
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Turns returns the number of completed user/assistant exchanges.
func (s Snapshot) Turns() int {
	return len(s.Transcript) / 2
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	transcript := make([]Entry, len(s.transcript))
	copy(transcript, s.transcript)

	return Snapshot{
		ID:         s.id,
		SourceURL:  s.sourceURL,
		Content:    s.content,
		Transcript: transcript,
		History:    types.CloneMessages(s.history),
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}
