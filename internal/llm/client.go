// Package llm provides the generation backend clients. The rest of the
// pipeline treats everything a client returns as untrusted text.
package llm

import (
	"context"
	"fmt"
	"strings"

	"stitcher/internal/config"
)

// Client defines the interface for generation backends. A Client is bound to
// one model; callers pick the model per generation role at construction time.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New constructs a Client for the configured provider, bound to the given
// model identifier.
func New(cfg *config.Config, model string) (Client, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return NewGeminiClient(cfg.LLM.APIKey, model)
	case "openai-compat", "":
		return NewOpenAICompatClient(OpenAICompatConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// IsRetryable determines if a backend error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Auth errors - not retryable
	nonRetryablePatterns := []string{
		"unauthorized",
		"forbidden",
		"invalid api key",
		"401",
		"403",
	}
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	// Network and availability errors - retryable
	retryablePatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"rate limit",
		"503",
		"502",
		"429",
		"context deadline exceeded",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	// Default: retry
	return true
}
