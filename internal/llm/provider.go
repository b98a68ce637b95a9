// Package llm adapts text-completion backends to a single Completer interface.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Completer sends a prompt to a model and returns its raw text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider      string // "ollama" (default) or "openrouter"
	OllamaBaseURL string
	OllamaModel   string
	OpenRouterKey string
	OpenRouterURL string // optional override
	Model         string // OpenRouter model id
}

// New returns the Completer named by cfg.Provider.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "ollama":
		if cfg.OllamaModel == "" {
			return nil, fmt.Errorf("ollama provider requires a model")
		}
		return NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	case "openrouter":
		if cfg.OpenRouterKey == "" {
			return nil, fmt.Errorf("openrouter provider requires an API key (set WXTODO_OPENROUTER_API_KEY)")
		}
		c := NewOpenRouter(cfg.OpenRouterKey, cfg.Model)
		if cfg.OpenRouterURL != "" {
			c.baseURL = strings.TrimRight(cfg.OpenRouterURL, "/")
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: ollama, openrouter)", cfg.Provider)
	}
}
