package chat

import (
	"errors"
	"fmt"

	"github.com/entrhq/aqlmind/pkg/session"
)

var (
	// ErrSessionNotFound is returned for an unknown or deleted session id.
	ErrSessionNotFound = session.ErrNotFound

	// ErrEmptyMessage is returned when a chat message has no visible text.
	ErrEmptyMessage = errors.New("message is empty")
)

// FetchError reports that a page could not be loaded. No session exists
// for a load that failed with a FetchError.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// LLMError reports that the model could not produce a reply. The session
// is left as it was before the message was sent.
type LLMError struct {
	SessionID string
	Err       error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("failed to get response for session %s: %v", e.SessionID, e.Err)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}
