package config

import (
	"fmt"
	"net/http"
	"os"

	"github.com/entrhq/aqlmind/pkg/llm"
	"github.com/entrhq/aqlmind/pkg/llm/anthropic"
	"github.com/entrhq/aqlmind/pkg/llm/openai"
)

// ProviderKind names an LLM backend.
type ProviderKind string

const (
	// ProviderGemini talks to Gemini through its OpenAI-compatible endpoint.
	ProviderGemini    ProviderKind = "gemini"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
)

const (
	GeminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai"
	GeminiDefaultModel = "gemini-2.5-flash"
)

func (k ProviderKind) valid() bool {
	switch k {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return true
	}
	return false
}

// keyEnv is the environment variable holding the provider's API key.
func (k ProviderKind) keyEnv() string {
	switch k {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

func (k ProviderKind) defaultModel() string {
	switch k {
	case ProviderOpenAI:
		return openai.DefaultModel
	case ProviderAnthropic:
		return anthropic.DefaultModel
	default:
		return GeminiDefaultModel
	}
}

// Overrides are LLM settings given on the command line. Empty fields do
// not override anything.
type Overrides struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// ResolvedLLM is the final LLM configuration after precedence is applied.
type ResolvedLLM struct {
	Provider ProviderKind
	Model    string
	BaseURL  string
	// APIKey is the default key, used when a session was loaded without one
	APIKey string
}

// ResolveLLM applies configuration precedence:
// CLI flags > Environment variables > Config file > Defaults
func (c *Config) ResolveLLM(cli Overrides) (ResolvedLLM, error) {
	r := ResolvedLLM{
		Provider: c.LLM.Provider,
		Model:    cli.Model,
		BaseURL:  cli.BaseURL,
		APIKey:   cli.APIKey,
	}
	if cli.Provider != "" {
		r.Provider = ProviderKind(cli.Provider)
	}
	if r.Provider == "" {
		r.Provider = ProviderGemini
	}
	if !r.Provider.valid() {
		return ResolvedLLM{}, fmt.Errorf("invalid llm provider: %s (must be 'gemini', 'openai' or 'anthropic')", r.Provider)
	}

	// Fall back to environment variables if CLI values are empty
	if r.APIKey == "" {
		r.APIKey = os.Getenv(r.Provider.keyEnv())
	}
	if r.BaseURL == "" && r.Provider == ProviderOpenAI {
		r.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	// Fall back to config file if still empty
	if r.Model == "" {
		r.Model = c.LLM.Model
	}
	if r.BaseURL == "" {
		r.BaseURL = c.LLM.BaseURL
	}
	if r.APIKey == "" {
		r.APIKey = c.LLM.APIKey
	}

	if r.Model == "" {
		r.Model = r.Provider.defaultModel()
	}
	if r.BaseURL == "" && r.Provider == ProviderGemini {
		r.BaseURL = GeminiBaseURL
	}

	return r, nil
}

// Factory returns a function that builds a provider for a session's key.
// Providers built by one factory share an HTTP client.
func (r ResolvedLLM) Factory() func(apiKey string) (llm.Provider, error) {
	httpClient := &http.Client{}

	return func(apiKey string) (llm.Provider, error) {
		if apiKey == "" {
			apiKey = r.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("API key is required. Enter one when loading a page, set %s, use -api-key, or configure llm.api_key in ~/%s/%s",
				r.Provider.keyEnv(), DirName, FileName)
		}

		switch r.Provider {
		case ProviderAnthropic:
			opts := []anthropic.ProviderOption{anthropic.WithModel(r.Model)}
			if r.BaseURL != "" {
				opts = append(opts, anthropic.WithBaseURL(r.BaseURL))
			}
			provider, err := anthropic.NewProvider(apiKey, opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create LLM provider: %w", err)
			}
			return provider, nil

		default:
			opts := []openai.ProviderOption{
				openai.WithModel(r.Model),
				openai.WithHTTPClient(httpClient),
			}
			if r.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(r.BaseURL))
			}
			provider, err := openai.NewProvider(apiKey, opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create LLM provider: %w", err)
			}
			return provider, nil
		}
	}
}
