// Package config loads AqlMind settings from a YAML file and resolves the
// LLM provider from flags, environment and file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/aqlmind/pkg/fetch"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-user directory holding config and logs.
	DirName = ".aqlmind"

	// FileName is the config file inside DirName.
	FileName = "config.yaml"
)

// Config is the complete AqlMind configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm" json:"llm"`
	Fetch   FetchConfig   `yaml:"fetch" json:"fetch"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LLMConfig selects the model that answers questions.
type LLMConfig struct {
	// Provider is one of "gemini", "openai" or "anthropic"
	Provider ProviderKind `yaml:"provider" json:"provider"`
	Model    string       `yaml:"model" json:"model"`
	BaseURL  string       `yaml:"base_url" json:"base_url"`
	// APIKey is the fallback credential for loads that do not supply one
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// FetchConfig controls how pages are rendered and which may be loaded.
type FetchConfig struct {
	Headless  bool          `yaml:"headless" json:"headless"`
	WaitUntil string        `yaml:"wait_until" json:"wait_until"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`

	// CleanHTML strips scripts and styling before the page is stored
	CleanHTML        bool `yaml:"clean_html" json:"clean_html"`
	MaxContentLength int  `yaml:"max_content_length" json:"max_content_length"`

	AllowedHosts []string `yaml:"allowed_hosts" json:"allowed_hosts"`
	DeniedHosts  []string `yaml:"denied_hosts" json:"denied_hosts"`

	// SkipInstall assumes the Playwright driver and Chromium are installed
	SkipInstall bool `yaml:"skip_install" json:"skip_install"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LoggingConfig defines where log files are written.
type LoggingConfig struct {
	// Dir overrides ~/.aqlmind/logs
	Dir string `yaml:"dir" json:"dir"`
}

var validWaitUntil = map[string]bool{
	"load":             true,
	"domcontentloaded": true,
	"networkidle":      true,
	"commit":           true,
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: ProviderGemini,
			Timeout:  120 * time.Second,
		},
		Fetch: FetchConfig{
			Headless:  true,
			WaitUntil: fetch.DefaultWaitUntil,
			Timeout:   fetch.DefaultTimeout,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// DefaultPath returns ~/.aqlmind/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName, FileName), nil
}

// Load reads path over DefaultConfig and validates the result. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGemini
	}
	if !c.LLM.Provider.valid() {
		return fmt.Errorf("invalid llm provider: %s (must be 'gemini', 'openai' or 'anthropic')", c.LLM.Provider)
	}

	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm timeout cannot be negative")
	}

	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch timeout cannot be negative")
	}

	if c.Fetch.WaitUntil == "" {
		c.Fetch.WaitUntil = fetch.DefaultWaitUntil
	}
	if !validWaitUntil[c.Fetch.WaitUntil] {
		return fmt.Errorf("invalid fetch wait_until: %s (must be 'load', 'domcontentloaded', 'networkidle' or 'commit')", c.Fetch.WaitUntil)
	}

	if c.Fetch.MaxContentLength < 0 {
		return fmt.Errorf("max_content_length cannot be negative")
	}

	if _, err := c.Guard(); err != nil {
		return err
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}

	return nil
}

// FetchOptions converts the fetch section for the Playwright fetcher.
func (c *Config) FetchOptions() fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Headless = c.Fetch.Headless
	opts.SkipInstall = c.Fetch.SkipInstall
	if c.Fetch.WaitUntil != "" {
		opts.WaitUntil = c.Fetch.WaitUntil
	}
	if c.Fetch.Timeout > 0 {
		opts.Timeout = c.Fetch.Timeout
	}
	if c.Fetch.UserAgent != "" {
		opts.UserAgent = c.Fetch.UserAgent
	}
	return opts
}

// Guard compiles the host allow and deny lists.
func (c *Config) Guard() (*fetch.URLGuard, error) {
	return fetch.NewURLGuard(c.Fetch.AllowedHosts, c.Fetch.DeniedHosts)
}

// WrapFetcher applies the configured HTML cleaning to f.
func (c *Config) WrapFetcher(f fetch.Fetcher) fetch.Fetcher {
	if !c.Fetch.CleanHTML {
		return f
	}
	return fetch.Cleaning(f, c.Fetch.MaxContentLength)
}
