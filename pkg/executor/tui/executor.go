// Package tui provides the interactive terminal front-end: one implicit
// session, a URL field and a chat input.
//
// The TUI codebase is split into multiple files:
// - executor.go: program lifecycle
// - model.go: model state and construction
// - update.go: key handling and async load/chat commands
// - view.go: rendering
// - highlight.go: code block highlighting in replies
// - styles.go: color scheme
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/entrhq/aqlmind/pkg/logging"
)

// Executor runs the terminal UI over a Conversation.
type Executor struct {
	conv      Conversation
	apiKey    string
	modelName string
	logger    *logging.Logger
}

// NewExecutor creates a TUI for conv. apiKey pre-fills the key field and
// modelName is shown in the status bar.
func NewExecutor(conv Conversation, apiKey, modelName string, logger *logging.Logger) *Executor {
	return &Executor{
		conv:      conv,
		apiKey:    apiKey,
		modelName: modelName,
		logger:    logger,
	}
}

// Run starts the TUI and blocks until the user exits or ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	m := newModel(ctx, e.conv, e.apiKey, e.modelName, e.logger)
	m.logger.Infof("TUI starting")

	program := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run TUI program: %w", err)
	}

	m.logger.Infof("TUI stopped")
	return nil
}
