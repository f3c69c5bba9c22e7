package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleSession_RequiresLoad(t *testing.T) {
	svc, _, _ := newTestService(nil, replyWith("unused"))
	single := NewSingleSession(svc, "key")

	assert.False(t, single.Loaded())

	_, err := single.Ask(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, single.Clear(), ErrSessionNotFound)

	_, err = single.Snapshot()
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSingleSession_LoadReplacesSession(t *testing.T) {
	svc, store, providers := newTestService(map[string]string{
		"https://a.example": "<p>A</p>",
		"https://b.example": "<p>B</p>",
	}, replyWith("ok"))
	single := NewSingleSession(svc, "first-key")
	ctx := context.Background()

	require.NoError(t, single.Load(ctx, "https://a.example"))
	_, err := single.Ask(ctx, "about A")
	require.NoError(t, err)

	single.SetAPIKey("second-key")
	require.NoError(t, single.Load(ctx, "https://b.example"))

	snap, err := single.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "https://b.example", snap.SourceURL)
	assert.Empty(t, snap.Transcript)
	assert.Equal(t, 1, store.Len())

	_, err = single.Ask(ctx, "about B")
	require.NoError(t, err)
	assert.Equal(t, []string{"first-key", "second-key"}, providers.keys)
}

func TestSingleSession_FailedLoadKeepsConversation(t *testing.T) {
	svc, _, _ := newTestService(map[string]string{"https://a.example": "<p>A</p>"}, replyWith("ok"))
	single := NewSingleSession(svc, "")
	ctx := context.Background()

	require.NoError(t, single.Load(ctx, "https://a.example"))
	_, err := single.Ask(ctx, "question")
	require.NoError(t, err)

	err = single.Load(ctx, "https://broken.example")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))

	snap, err := single.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", snap.SourceURL)
	assert.Len(t, snap.Transcript, 2)
}

func TestSingleSession_ClearAfterThreeTurns(t *testing.T) {
	svc, _, _ := newTestService(map[string]string{"https://a.example": "<p>A</p>"}, replyWith("ok"))
	single := NewSingleSession(svc, "")
	ctx := context.Background()

	require.NoError(t, single.Load(ctx, "https://a.example"))
	for i := 0; i < 3; i++ {
		_, err := single.Ask(ctx, "q")
		require.NoError(t, err)
	}

	require.NoError(t, single.Clear())

	snap, err := single.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Transcript)
	assert.Len(t, snap.History, 1)

	tokens, err := single.ContextTokens()
	require.NoError(t, err)
	assert.Greater(t, tokens, 0)
}
