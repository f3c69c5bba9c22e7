// Package app assembles the AqlMind components shared by the TUI and the
// HTTP API: configuration, logging, the page fetcher and the chat service.
package app

import (
	"errors"
	"fmt"

	"github.com/entrhq/aqlmind/pkg/chat"
	"github.com/entrhq/aqlmind/pkg/config"
	"github.com/entrhq/aqlmind/pkg/fetch"
	"github.com/entrhq/aqlmind/pkg/llm/tokens"
	"github.com/entrhq/aqlmind/pkg/logging"
	"github.com/entrhq/aqlmind/pkg/session"
)

// Options are the command line inputs to New.
type Options struct {
	// ConfigPath defaults to ~/.aqlmind/config.yaml
	ConfigPath string
	LLM        config.Overrides

	// Component names the front-end in log entries
	Component string

	// ShowBrowser forces a headed browser regardless of the config file
	ShowBrowser bool

	// Fetcher replaces the Playwright fetcher. Used by tests.
	Fetcher fetch.Fetcher
}

// App holds the wired components of one process.
type App struct {
	Config  *config.Config
	LLM     config.ResolvedLLM
	Service *chat.Service
	Logger  *logging.Logger

	browser *fetch.PlaywrightFetcher
}

// New loads configuration and builds the chat service. The caller must
// Close the returned App.
func New(opts Options) (*App, error) {
	path := opts.ConfigPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.ShowBrowser {
		cfg.Fetch.Headless = false
	}

	resolved, err := cfg.ResolveLLM(opts.LLM)
	if err != nil {
		return nil, err
	}

	if cfg.Logging.Dir != "" {
		logging.SetLogDirectory(cfg.Logging.Dir)
	}
	component := opts.Component
	if component == "" {
		component = "aqlmind"
	}
	// NewLogger falls back to stderr on error, so the logger is always usable.
	logger, _ := logging.NewLogger(component)

	guard, err := cfg.Guard()
	if err != nil {
		logger.Close()
		return nil, err
	}

	a := &App{
		Config: cfg,
		LLM:    resolved,
		Logger: logger,
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		a.browser = fetch.NewPlaywrightFetcher(cfg.FetchOptions(), logger.Component("fetch"))
		fetcher = a.browser
	}

	chatOpts := []chat.Option{
		chat.WithGuard(guard),
		chat.WithLogger(logger.Component("chat")),
		chat.WithTokenCounter(tokens.NewCounter()),
	}
	if cfg.Fetch.Timeout > 0 {
		chatOpts = append(chatOpts, chat.WithFetchTimeout(cfg.Fetch.Timeout))
	}
	if cfg.LLM.Timeout > 0 {
		chatOpts = append(chatOpts, chat.WithLLMTimeout(cfg.LLM.Timeout))
	}

	a.Service = chat.NewService(session.NewStore(), cfg.WrapFetcher(fetcher), resolved.Factory(), chatOpts...)

	logger.Infof("AqlMind started: provider=%s model=%s config=%s", resolved.Provider, resolved.Model, path)
	return a, nil
}

// Close stops the browser and closes the log file.
func (a *App) Close() error {
	var errs []error
	if a.browser != nil {
		if err := a.browser.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop browser: %w", err))
		}
	}
	if err := a.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
