package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/entrhq/aqlmind/pkg/chat"
	"github.com/entrhq/aqlmind/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConversation records calls and answers from fixed values.
type fakeConversation struct {
	apiKey  string
	loaded  string
	loadErr error
	reply   string
	askErr  error
	asked   []string
	cleared int
	counted int
}

func (f *fakeConversation) SetAPIKey(apiKey string) { f.apiKey = apiKey }

func (f *fakeConversation) Load(_ context.Context, url string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = url
	return nil
}

func (f *fakeConversation) Ask(_ context.Context, message string) (string, error) {
	f.asked = append(f.asked, message)
	if f.loaded == "" {
		return "", chat.ErrSessionNotFound
	}
	if f.askErr != nil {
		return "", f.askErr
	}
	return f.reply, nil
}

func (f *fakeConversation) Clear() error {
	if f.loaded == "" {
		return chat.ErrSessionNotFound
	}
	f.cleared++
	return nil
}

func (f *fakeConversation) Snapshot() (session.Snapshot, error) {
	return session.Snapshot{SourceURL: f.loaded}, nil
}

func (f *fakeConversation) ContextTokens() (int, error) {
	f.counted++
	if f.loaded == "" {
		return 0, chat.ErrSessionNotFound
	}
	return 1234 + 10*len(f.asked), nil
}

func newTestModel(conv *fakeConversation) *model {
	m := newModel(context.Background(), conv, "key", "gemini-2.5-flash", nil)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

// collect runs cmd and any batched commands, returning their messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// press sends a key and feeds load, reply and token results back into the
// model until no more arrive.
func press(m *model, key tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: key})
	if key == tea.KeyEsc || key == tea.KeyCtrlC {
		return cmd
	}
	pending := collect(cmd)
	for len(pending) > 0 {
		msg := pending[0]
		pending = pending[1:]
		switch msg.(type) {
		case pageLoadedMsg, replyMsg, tokensMsg:
			_, next := m.Update(msg)
			pending = append(pending, collect(next)...)
		}
	}
	return nil
}

func lastEntry(m *model) entry {
	return m.entries[len(m.entries)-1]
}

func loadPage(t *testing.T, m *model, url string) {
	t.Helper()
	m.setFocus(focusURL)
	m.urlInput.SetValue(url)
	press(m, tea.KeyEnter)
	require.Equal(t, url, m.sourceURL)
}

func TestNewModel_FocusDependsOnKey(t *testing.T) {
	withKey := newModel(context.Background(), &fakeConversation{}, "key", "", nil)
	assert.Equal(t, focusURL, withKey.focus)

	withoutKey := newModel(context.Background(), &fakeConversation{}, "", "", nil)
	assert.Equal(t, focusKey, withoutKey.focus)
}

func TestLoad(t *testing.T) {
	conv := &fakeConversation{}
	m := newTestModel(conv)
	m.keyInput.SetValue("  typed-key ")

	loadPage(t, m, "https://example.com")

	assert.Equal(t, "typed-key", conv.apiKey)
	assert.Equal(t, "https://example.com", conv.loaded)
	assert.False(t, m.busy)
	assert.Equal(t, focusChat, m.focus)
	assert.Equal(t, 1234, m.contextTokens)
	assert.Equal(t, entry{kind: entryInfo, text: "Chatting with content from: https://example.com"}, lastEntry(m))
}

func TestTokensCountedOffUpdateLoop(t *testing.T) {
	conv := &fakeConversation{loaded: "https://example.com"}
	m := newTestModel(conv)

	_, cmd := m.Update(pageLoadedMsg{url: "https://example.com"})
	assert.Equal(t, 0, conv.counted, "Update must not tokenize the history itself")
	assert.Equal(t, 0, m.contextTokens)
	require.NotNil(t, cmd)

	msgs := collect(cmd)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, conv.counted)

	m.Update(msgs[0])
	assert.Equal(t, 1234, m.contextTokens)

	m.Update(tokensMsg{err: chat.ErrSessionNotFound})
	assert.Equal(t, 0, m.contextTokens)
}

func TestLoad_StartsBusy(t *testing.T) {
	m := newTestModel(&fakeConversation{})
	m.urlInput.SetValue("https://example.com")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Contains(t, m.View(), "Fetching website content...")

	// A second enter while loading is ignored
	_, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, again)
}

func TestLoad_Failure(t *testing.T) {
	conv := &fakeConversation{loadErr: &chat.FetchError{URL: "https://bad.invalid", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}}
	m := newTestModel(conv)
	m.urlInput.SetValue("https://bad.invalid")

	press(m, tea.KeyEnter)

	assert.False(t, m.busy)
	assert.Empty(t, m.sourceURL)
	assert.Equal(t, entry{kind: entryError, text: "Error fetching URL: net::ERR_NAME_NOT_RESOLVED"}, lastEntry(m))
}

func TestLoad_EmptyURL(t *testing.T) {
	m := newTestModel(&fakeConversation{})

	press(m, tea.KeyEnter)

	assert.False(t, m.busy)
	assert.Equal(t, entryError, lastEntry(m).kind)
}

func TestAsk(t *testing.T) {
	conv := &fakeConversation{reply: "It says Hi"}
	m := newTestModel(conv)
	loadPage(t, m, "https://example.com")

	m.textarea.SetValue("What does it say?")
	press(m, tea.KeyEnter)

	assert.Equal(t, []string{"What does it say?"}, conv.asked)
	require.GreaterOrEqual(t, len(m.entries), 2)
	assert.Equal(t, entry{kind: entryUser, text: "What does it say?"}, m.entries[len(m.entries)-2])
	assert.Equal(t, entry{kind: entryAssistant, text: "It says Hi"}, lastEntry(m))
	assert.Equal(t, "It says Hi", m.lastReply)
	assert.Empty(t, m.textarea.Value())
	assert.Equal(t, 1244, m.contextTokens)
}

func TestAsk_BeforeLoad(t *testing.T) {
	conv := &fakeConversation{reply: "unused"}
	m := newTestModel(conv)
	m.setFocus(focusChat)
	m.textarea.SetValue("hello")

	press(m, tea.KeyEnter)

	assert.Empty(t, conv.asked)
	assert.Equal(t, entry{kind: entryError, text: "Please load a URL to start chatting."}, lastEntry(m))
}

func TestAsk_BlankIgnored(t *testing.T) {
	conv := &fakeConversation{reply: "unused"}
	m := newTestModel(conv)
	loadPage(t, m, "https://example.com")
	before := len(m.entries)

	m.textarea.SetValue("   ")
	press(m, tea.KeyEnter)

	assert.Empty(t, conv.asked)
	assert.Len(t, m.entries, before)
}

func TestAsk_FailureRestoresQuestion(t *testing.T) {
	conv := &fakeConversation{askErr: &chat.LLMError{SessionID: "s", Err: errors.New("quota exceeded")}}
	m := newTestModel(conv)
	loadPage(t, m, "https://example.com")

	m.textarea.SetValue("hello")
	press(m, tea.KeyEnter)

	assert.Equal(t, "hello", m.textarea.Value())
	assert.Equal(t, entry{kind: entryError, text: "Error getting response: quota exceeded"}, lastEntry(m))
	for _, e := range m.entries {
		assert.NotEqual(t, entryUser, e.kind)
	}
}

func TestClearChat(t *testing.T) {
	conv := &fakeConversation{reply: "ok"}
	m := newTestModel(conv)
	loadPage(t, m, "https://example.com")
	for i := 0; i < 3; i++ {
		m.textarea.SetValue("q")
		press(m, tea.KeyEnter)
	}

	press(m, tea.KeyCtrlR)

	assert.Equal(t, 1, conv.cleared)
	require.Len(t, m.entries, 1)
	assert.Equal(t, entryInfo, m.entries[0].kind)
	assert.Empty(t, m.lastReply)
}

func TestClearChat_NothingLoaded(t *testing.T) {
	m := newTestModel(&fakeConversation{})

	press(m, tea.KeyCtrlR)

	assert.Equal(t, entryError, lastEntry(m).kind)
}

func TestCopyLastReply(t *testing.T) {
	conv := &fakeConversation{reply: "It says Hi"}
	m := newTestModel(conv)
	var copied string
	m.copy = func(s string) error {
		copied = s
		return nil
	}

	press(m, tea.KeyCtrlY)
	assert.Equal(t, entry{kind: entryError, text: "No reply to copy yet."}, lastEntry(m))

	loadPage(t, m, "https://example.com")
	m.textarea.SetValue("q")
	press(m, tea.KeyEnter)
	press(m, tea.KeyCtrlY)

	assert.Equal(t, "It says Hi", copied)
	assert.Equal(t, entryInfo, lastEntry(m).kind)

	m.copy = func(string) error { return errors.New("no clipboard utility") }
	press(m, tea.KeyCtrlY)
	assert.Contains(t, lastEntry(m).text, "no clipboard utility")
}

func TestTabCyclesFocus(t *testing.T) {
	m := newTestModel(&fakeConversation{})
	m.setFocus(focusKey)

	press(m, tea.KeyTab)
	assert.Equal(t, focusURL, m.focus)
	press(m, tea.KeyTab)
	assert.Equal(t, focusChat, m.focus)
	press(m, tea.KeyTab)
	assert.Equal(t, focusKey, m.focus)
	press(m, tea.KeyShiftTab)
	assert.Equal(t, focusChat, m.focus)
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlC} {
		m := newTestModel(&fakeConversation{})
		cmd := press(m, key)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.QuitMsg{}, cmd())
	}
}

func TestView(t *testing.T) {
	m := newModel(context.Background(), &fakeConversation{}, "", "gemini-2.5-flash", nil)
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	view := m.View()
	assert.Contains(t, view, "AqlMind")
	assert.Contains(t, view, "no page loaded")
	assert.Contains(t, view, "gemini-2.5-flash")
	assert.Contains(t, view, "Please load a URL to start chatting.")
}

func TestRenderReply(t *testing.T) {
	reply := "Here is the snippet:\n\n```go\nfmt.Println(\"hi\")\n```\n\nThat prints hi."

	out := renderReply(reply, 60)

	assert.Contains(t, out, "Here is the snippet:")
	assert.Contains(t, out, "That prints hi.")
	assert.Contains(t, out, "Println")
	assert.NotContains(t, out, "```")
}

func TestRenderReply_UnterminatedFence(t *testing.T) {
	out := renderReply("```python\nprint(1)\n", 60)

	assert.Contains(t, out, "print")
	assert.NotContains(t, out, "```")
}

func TestWordWrap(t *testing.T) {
	assert.Equal(t, "one two\nthree", wordWrap("one two three", 8))
	assert.Equal(t, "a\n\nb", wordWrap("a\n\nb", 10))
	assert.Equal(t, "supercalifragilistic\nx", wordWrap("supercalifragilistic x", 5))
}

func TestFormatTokenCount(t *testing.T) {
	assert.Equal(t, "999", formatTokenCount(999))
	assert.Equal(t, "1.5K", formatTokenCount(1500))
	assert.Equal(t, "2.0M", formatTokenCount(2000000))
}

func TestTruncateMiddle(t *testing.T) {
	assert.Equal(t, "short", truncateMiddle("short", 10))
	got := truncateMiddle("https://example.com/a/very/long/path", 15)
	assert.Len(t, []rune(got), 15)
	assert.True(t, strings.HasPrefix(got, "https:/"))
	assert.Contains(t, got, "…")
}
