// Package main provides the AqlMind HTTP API and browser front-end. Every
// page load creates an independent chat session.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/aqlmind/pkg/app"
	"github.com/entrhq/aqlmind/pkg/config"
	"github.com/entrhq/aqlmind/pkg/logging"
	"github.com/entrhq/aqlmind/pkg/server"
)

const version = "0.1.0"

// Config holds the server configuration
type Config struct {
	ConfigPath  string
	Addr        string
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	ShowVersion bool
}

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("AqlMind server v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		cancel()
		log.Fatalf("Server error: %v", err)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to config file (default: ~/.aqlmind/config.yaml)")
	flag.StringVar(&cfg.Addr, "addr", "", "Listen address (default: server.addr from config, :8000)")
	flag.StringVar(&cfg.Provider, "provider", "", "LLM provider: gemini, openai or anthropic")
	flag.StringVar(&cfg.APIKey, "api-key", "", "Fallback LLM API key for loads that send none")
	flag.StringVar(&cfg.BaseURL, "base-url", "", "LLM API base URL")
	flag.StringVar(&cfg.Model, "model", "", "LLM model to use")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "AqlMind server - multi-session web page chat API\n\n")
		fmt.Fprintf(os.Stderr, "Usage: aqlmind-server [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEndpoints:\n")
		fmt.Fprintf(os.Stderr, "  POST   /api/load-url        {\"api_key\", \"url\"} -> {\"session_id\", \"message\"}\n")
		fmt.Fprintf(os.Stderr, "  POST   /api/chat            {\"session_id\", \"message\"} -> {\"response\"}\n")
		fmt.Fprintf(os.Stderr, "  GET    /api/session/{id}    session transcript\n")
		fmt.Fprintf(os.Stderr, "  DELETE /api/session/{id}    clear (or ?purge=true to delete)\n")
		fmt.Fprintf(os.Stderr, "  GET    /api/health\n")
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
		Component: "server",
	})
	if err != nil {
		return err
	}
	defer a.Close()

	settings := server.Settings{
		Addr:            a.Config.Server.Addr,
		ReadTimeout:     a.Config.Server.ReadTimeout,
		WriteTimeout:    a.Config.Server.WriteTimeout,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
	}
	if cfg.Addr != "" {
		settings.Addr = cfg.Addr
	}

	// Request logs go to the run's log file and to the terminal.
	httpLogger := logging.NewWriterLogger("http", io.MultiWriter(a.Logger.Writer(), os.Stderr))

	fmt.Printf("AqlMind server listening on %s (logs: %s)\n", settings.Addr, a.Logger.LogPath())
	return server.NewServer(a.Service, settings, httpLogger).Run(ctx)
}
