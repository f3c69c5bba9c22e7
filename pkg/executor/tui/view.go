package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI interface.
func (m *model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	sections := []string{
		m.buildHeader(),
		m.buildTips(),
		m.buildField("Key", m.keyInput.View(), m.focus == focusKey),
		m.buildField("URL", m.urlInput.View(), m.focus == focusURL),
		m.viewport.View(),
	}
	if m.busy {
		sections = append(sections, m.buildLoadingIndicator())
	}
	sections = append(sections, m.buildInputBox(), m.buildBottomBar())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *model) buildHeader() string {
	return headerStyle.Render("  AqlMind") + tipsStyle.Render("  chat with any web page")
}

func (m *model) buildTips() string {
	return tipsStyle.Render("  Tab switch field • Enter load/send • Ctrl+R clear chat • Ctrl+Y copy reply • Esc quit")
}

func (m *model) buildField(label, input string, focused bool) string {
	style := labelStyle
	if focused {
		style = style.Foreground(salmonPink)
	}
	return "  " + style.Render(label) + input
}

func (m *model) buildLoadingIndicator() string {
	return lipgloss.NewStyle().
		Foreground(salmonPink).
		Padding(0, 2).
		Render(fmt.Sprintf("%s %s", m.spinner.View(), m.busyMessage))
}

func (m *model) buildInputBox() string {
	style := inputBoxStyle
	if m.focus == focusChat {
		style = focusedInputBoxStyle
	}
	return style.Width(m.width - 4).Render(m.textarea.View())
}

// buildBottomBar shows the loaded page, the model and the context size.
func (m *model) buildBottomBar() string {
	left := "no page loaded"
	if m.sourceURL != "" {
		left = truncateMiddle(m.sourceURL, m.width/2)
	}

	right := "◆ Context: " + formatTokenCount(m.contextTokens)
	if m.modelName != "" {
		right = m.modelName + " | " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 2 {
		padding = 2
	}
	return statusBarStyle.Render(left + strings.Repeat(" ", padding) + right)
}

// renderEntries draws the transcript and inline notices.
func (m *model) renderEntries() string {
	width := m.viewport.Width - 2
	if width <= 0 {
		width = 80
	}

	blocks := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		switch e.kind {
		case entryUser:
			blocks = append(blocks, userStyle.Render(wordWrap("> "+e.text, width)))
		case entryAssistant:
			blocks = append(blocks, renderReply(e.text, width))
		case entryError:
			blocks = append(blocks, errorStyle.Render(wordWrap("✗ "+e.text, width)))
		default:
			blocks = append(blocks, infoStyle.Render(wordWrap(e.text, width)))
		}
	}
	return strings.Join(blocks, "\n\n")
}
