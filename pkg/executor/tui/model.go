package tui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/entrhq/aqlmind/pkg/logging"
	"github.com/entrhq/aqlmind/pkg/session"
)

// Conversation is the single implicit session the TUI drives.
// *chat.SingleSession implements it.
type Conversation interface {
	SetAPIKey(apiKey string)
	Load(ctx context.Context, url string) error
	Ask(ctx context.Context, message string) (string, error)
	Clear() error
	Snapshot() (session.Snapshot, error)
	ContextTokens() (int, error)
}

// focusArea is the input that receives key presses.
type focusArea int

const (
	focusKey focusArea = iota
	focusURL
	focusChat
)

// entryKind controls how a transcript line is rendered.
type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryInfo
	entryError
)

type entry struct {
	kind entryKind
	text string
}

// model represents the state of the TUI application.
type model struct {
	// Bubble Tea components
	viewport viewport.Model
	keyInput textinput.Model
	urlInput textinput.Model
	textarea textarea.Model
	spinner  spinner.Model

	conv      Conversation
	ctx       context.Context
	logger    *logging.Logger
	modelName string

	// copy writes to the system clipboard
	copy func(string) error

	entries   []entry
	lastReply string

	// Page state
	sourceURL     string
	contextTokens int

	// UI state
	focus       focusArea
	busy        bool
	busyMessage string

	// Window dimensions
	width  int
	height int
	ready  bool
}

// pageLoadedMsg reports the outcome of a page load.
type pageLoadedMsg struct {
	url string
	err error
}

// replyMsg reports the outcome of a chat turn.
type replyMsg struct {
	question string
	reply    string
	err      error
}

// tokensMsg carries a freshly counted history size.
type tokensMsg struct {
	tokens int
	err    error
}

func newModel(ctx context.Context, conv Conversation, apiKey, modelName string, logger *logging.Logger) *model {
	if logger == nil {
		logger = logging.Discard("tui")
	}

	keyInput := textinput.New()
	keyInput.Placeholder = "API key (optional when configured)"
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.EchoCharacter = '•'
	keyInput.SetValue(apiKey)

	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com"
	urlInput.CharLimit = 2048

	ta := textarea.New()
	ta.Placeholder = "Ask a question about the website content"
	ta.ShowLineNumbers = false
	ta.SetHeight(1)
	ta.CharLimit = 0
	ta.KeyMap.InsertNewline.SetEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = headerStyle

	m := &model{
		viewport:  viewport.New(80, 20),
		keyInput:  keyInput,
		urlInput:  urlInput,
		textarea:  ta,
		spinner:   s,
		conv:      conv,
		ctx:       ctx,
		logger:    logger,
		modelName: modelName,
		copy:      clipboard.WriteAll,
	}

	if strings.TrimSpace(apiKey) == "" {
		m.setFocus(focusKey)
	} else {
		m.setFocus(focusURL)
	}
	m.addEntry(entryInfo, "Please load a URL to start chatting.")
	return m
}

func (m *model) setFocus(f focusArea) {
	m.focus = f
	m.keyInput.Blur()
	m.urlInput.Blur()
	m.textarea.Blur()

	switch f {
	case focusKey:
		m.keyInput.Focus()
	case focusURL:
		m.urlInput.Focus()
	case focusChat:
		m.textarea.Focus()
	}
}

func (m *model) addEntry(kind entryKind, text string) {
	m.entries = append(m.entries, entry{kind: kind, text: text})
	m.refreshViewport()
}

// refreshTokens counts the current history off the update loop, since
// tokenizing a whole page can be slow.
func (m *model) refreshTokens() tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		tokens, err := conv.ContextTokens()
		return tokensMsg{tokens: tokens, err: err}
	}
}
