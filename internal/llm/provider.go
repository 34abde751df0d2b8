// Package llm talks to the reasoning oracle: a hosted or local language
// model that answers free-form prompts.
package llm

import (
	"context"
	"time"

	"github.com/ppiankov/credence/internal/model"
)

// Completer is the part of a provider the analysis stages depend on
type Completer interface {
	// Complete sends one prompt and returns the model's answer
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Provider defines the interface for LLM providers
type Provider interface {
	Completer

	// Name returns the provider name
	Name() string

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single prompt to the oracle
type CompletionRequest struct {
	System      string  // Instructions for the model
	Prompt      string  // The user turn
	MaxTokens   int     // Zero means the provider's configured limit
	Temperature float32 // Zero means the provider's configured temperature
	Purpose     string  // Label for logs and quota accounting (extract, keywords, synthesize)
}

// Completion is the oracle's answer
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	Temperature float32

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "", // Disabled by default
		Timeout:     30,
		MaxTokens:   2000,
		Temperature: 0.3,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout <= 0 {
		return fallback
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) maxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 2000
}

func (c Config) temperature(req CompletionRequest) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	if c.Temperature > 0 {
		return c.Temperature
	}
	return 0.3
}

// ConfigFromModel converts model.LLMConfig to llm.Config. Proxy settings
// come from the shared HTTP section.
func ConfigFromModel(llmCfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:    llmCfg.Provider,
		Model:       llmCfg.Model,
		APIKey:      llmCfg.APIKey,
		BaseURL:     llmCfg.BaseURL,
		Timeout:     llmCfg.TimeoutSeconds,
		MaxTokens:   llmCfg.MaxTokens,
		Temperature: llmCfg.Temperature,
		HTTPProxy:   httpCfg.HTTPProxy,
		HTTPSProxy:  httpCfg.HTTPSProxy,
		NoProxy:     httpCfg.NoProxy,
	}
}
