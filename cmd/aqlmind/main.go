// Package main provides the AqlMind terminal application: load a web page,
// then chat with an LLM about its content.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/aqlmind/pkg/app"
	"github.com/entrhq/aqlmind/pkg/chat"
	"github.com/entrhq/aqlmind/pkg/config"
	"github.com/entrhq/aqlmind/pkg/executor/tui"
)

const version = "0.1.0"

// Config holds the application configuration
type Config struct {
	ConfigPath  string
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	ShowBrowser bool
	ShowVersion bool
}

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("AqlMind v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		cancel()
		log.Fatalf("Application error: %v", err)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to config file (default: ~/.aqlmind/config.yaml)")
	flag.StringVar(&cfg.Provider, "provider", "", "LLM provider: gemini, openai or anthropic")
	flag.StringVar(&cfg.APIKey, "api-key", "", "Default LLM API key (or set GEMINI_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	flag.StringVar(&cfg.BaseURL, "base-url", "", "LLM API base URL")
	flag.StringVar(&cfg.Model, "model", "", "LLM model to use")
	flag.BoolVar(&cfg.ShowBrowser, "show-browser", false, "Run the page-loading browser with a visible window")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "AqlMind - chat with any web page\n\n")
		fmt.Fprintf(os.Stderr, "Usage: aqlmind [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY     Gemini API key (default provider)\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY     OpenAI API key\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_BASE_URL    OpenAI API base URL (for compatible APIs)\n")
		fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY  Anthropic API key\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  aqlmind\n")
		fmt.Fprintf(os.Stderr, "  aqlmind -provider openai -model gpt-4o-mini\n")
		fmt.Fprintf(os.Stderr, "  aqlmind -show-browser\n")
	}

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	a, err := app.New(app.Options{
		ConfigPath: cfg.ConfigPath,
		LLM: config.Overrides{
			Provider: cfg.Provider,
			Model:    cfg.Model,
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
		},
		Component:   "tui",
		ShowBrowser: cfg.ShowBrowser,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	conv := chat.NewSingleSession(a.Service, a.LLM.APIKey)
	executor := tui.NewExecutor(conv, a.LLM.APIKey, a.LLM.Model, a.Logger)
	return executor.Run(ctx)
}
