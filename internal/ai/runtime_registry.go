package ai

import (
	"fmt"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// EmbedderFactory builds an Embedder from the generic config below.
type EmbedderFactory func(RuntimeConfig) Embedder

// RuntimeConfig carries common knobs used by runtimes and embedders.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// EmbedModel and EmbedTimeout apply to embedders only.
	EmbedModel   string
	EmbedTimeout time.Duration
	// OpenRouter
	APIKey  string
	BaseURL string
	// Ollama
	Host string
}

var (
	registry  = map[string]RuntimeFactory{}
	embedders = map[string]EmbedderFactory{}
)

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// RegisterEmbedder registers an embedding provider name with its factory.
func RegisterEmbedder(name string, f EmbedderFactory) { embedders[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	if f, ok := registry[name]; ok {
		return f(cfg), true
	}
	return nil, false
}

// GetEmbedder returns the configured Embedder, or nil for "none" or an empty
// name. Unknown names are an error.
func GetEmbedder(name string, cfg RuntimeConfig) (Embedder, error) {
	if name == "" || name == ProviderNone {
		return nil, nil
	}
	f, ok := embedders[name]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
	return f(cfg), nil
}

func openRouterClient(c RuntimeConfig) *Client {
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 4 * time.Second
	}
	return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, c.BaseURL)
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderOpenRouter, func(c RuntimeConfig) Runtime {
		return openRouterClient(c)
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		if c.RetryMax <= 0 {
			c.RetryMax = 2
		}
		if c.BaseDelay <= 0 {
			c.BaseDelay = 200 * time.Millisecond
		}
		if c.MaxDelay <= 0 {
			c.MaxDelay = 1 * time.Second
		}
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterEmbedder(ProviderOpenRouter, func(c RuntimeConfig) Embedder {
		if c.APIKey == "" {
			return nil
		}
		return NewClientEmbedder(openRouterClient(c), c.EmbedModel, c.EmbedTimeout)
	})
	RegisterEmbedder(ProviderOllama, func(c RuntimeConfig) Embedder {
		return NewOllamaEmbedder(NewOllamaEmbClient(c.Host, c.HTTPTimeout), c.EmbedModel, c.EmbedTimeout)
	})
}
