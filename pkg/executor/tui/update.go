package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/entrhq/aqlmind/pkg/chat"
)

// Init starts the cursor blink and spinner.
func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles all state updates for the TUI model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowResize(msg)

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case pageLoadedMsg:
		return m.handlePageLoaded(msg)

	case replyMsg:
		return m.handleReply(msg)

	case tokensMsg:
		if msg.err != nil {
			m.contextTokens = 0
		} else {
			m.contextTokens = msg.tokens
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	switch m.focus {
	case focusKey:
		m.keyInput, cmd = m.keyInput.Update(msg)
	case focusURL:
		m.urlInput, cmd = m.urlInput.Update(msg)
	case focusChat:
		m.textarea, cmd = m.textarea.Update(msg)
	}
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes global key bindings. It reports false for keys that
// belong to the focused input.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return tea.Quit, true

	case tea.KeyTab:
		m.setFocus((m.focus + 1) % 3)
		return nil, true

	case tea.KeyShiftTab:
		m.setFocus((m.focus + 2) % 3)
		return nil, true

	case tea.KeyCtrlR:
		return m.clearChat(), true

	case tea.KeyCtrlY:
		m.copyLastReply()
		return nil, true

	case tea.KeyEnter:
		return m.handleEnter(), true
	}
	return nil, false
}

func (m *model) handleEnter() tea.Cmd {
	switch m.focus {
	case focusKey:
		m.setFocus(focusURL)
		return nil

	case focusURL:
		url := strings.TrimSpace(m.urlInput.Value())
		if url == "" {
			m.addEntry(entryError, "Please provide a URL.")
			return nil
		}
		if m.busy {
			return nil
		}
		m.startBusy("Fetching website content...")
		m.conv.SetAPIKey(strings.TrimSpace(m.keyInput.Value()))
		return tea.Batch(m.loadCmd(url), m.spinner.Tick)

	default:
		question := m.textarea.Value()
		if strings.TrimSpace(question) == "" || m.busy {
			return nil
		}
		if m.sourceURL == "" {
			m.addEntry(entryError, "Please load a URL to start chatting.")
			return nil
		}
		m.textarea.Reset()
		m.addEntry(entryUser, question)
		m.startBusy("Getting response...")
		return tea.Batch(m.askCmd(question), m.spinner.Tick)
	}
}

func (m *model) loadCmd(url string) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		return pageLoadedMsg{url: url, err: conv.Load(ctx, url)}
	}
}

func (m *model) askCmd(question string) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		reply, err := conv.Ask(ctx, question)
		return replyMsg{question: question, reply: reply, err: err}
	}
}

func (m *model) startBusy(message string) {
	m.busy = true
	m.busyMessage = message
	m.recalculateLayout()
}

func (m *model) stopBusy() {
	m.busy = false
	m.busyMessage = ""
	m.recalculateLayout()
}

func (m *model) handlePageLoaded(msg pageLoadedMsg) (tea.Model, tea.Cmd) {
	m.stopBusy()

	if msg.err != nil {
		m.logger.Warnf("Load of %s failed: %v", msg.url, msg.err)
		m.addEntry(entryError, "Error fetching URL: "+errorDetail(msg.err))
		return m, nil
	}

	m.logger.Infof("Loaded %s", msg.url)
	m.sourceURL = msg.url
	m.lastReply = ""
	m.entries = nil
	m.addEntry(entryInfo, "Chatting with content from: "+msg.url)
	m.setFocus(focusChat)
	return m, m.refreshTokens()
}

func (m *model) handleReply(msg replyMsg) (tea.Model, tea.Cmd) {
	m.stopBusy()

	if msg.err != nil {
		m.logger.Warnf("Chat turn failed: %v", msg.err)
		// The session dropped the question, so hand it back for a retry.
		if len(m.entries) > 0 && m.entries[len(m.entries)-1].kind == entryUser {
			m.entries = m.entries[:len(m.entries)-1]
		}
		m.textarea.SetValue(msg.question)
		if errors.Is(msg.err, chat.ErrSessionNotFound) {
			m.addEntry(entryError, "Please load a URL to start chatting.")
		} else {
			m.addEntry(entryError, "Error getting response: "+errorDetail(msg.err))
		}
		return m, nil
	}

	m.lastReply = msg.reply
	m.addEntry(entryAssistant, msg.reply)
	return m, m.refreshTokens()
}

func (m *model) clearChat() tea.Cmd {
	if m.busy {
		return nil
	}
	if err := m.conv.Clear(); err != nil {
		m.addEntry(entryError, "Nothing to clear: load a URL first.")
		return nil
	}
	m.lastReply = ""
	m.entries = nil
	m.addEntry(entryInfo, "Chat cleared. Still chatting with: "+m.sourceURL)
	return m.refreshTokens()
}

func (m *model) copyLastReply() {
	if m.lastReply == "" {
		m.addEntry(entryError, "No reply to copy yet.")
		return
	}
	if err := m.copy(m.lastReply); err != nil {
		m.addEntry(entryError, "Failed to copy to clipboard: "+err.Error())
		return
	}
	m.addEntry(entryInfo, "Copied last reply to clipboard.")
}

// errorDetail strips the service wrapper so the user sees the cause.
func errorDetail(err error) string {
	var fetchErr *chat.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Err.Error()
	}
	var llmErr *chat.LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Err.Error()
	}
	return err.Error()
}

func (m *model) handleWindowResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	m.viewport.Width = m.width - 4
	m.keyInput.Width = m.width - 16
	m.urlInput.Width = m.width - 16
	m.textarea.SetWidth(m.width - 8)
	m.ready = true
	m.recalculateLayout()
	return m, nil
}

// recalculateLayout resizes the viewport to the space left by the chrome.
func (m *model) recalculateLayout() {
	// header, tips, two input rows, chat box (3), status bar, spacing
	chrome := 12
	if m.busy {
		chrome++
	}
	height := m.height - chrome
	if height < 3 {
		height = 3
	}
	m.viewport.Height = height
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}
