package ai

import (
	"context"
	"fmt"
	"time"
)

// Embedder turns text into a vector. A nil Embedder means no provider is
// configured; callers check for nil instead of probing the environment.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// defaultEmbedTimeout bounds a single embedding call when none is configured.
const defaultEmbedTimeout = 30 * time.Second

// ClientEmbedder embeds through an OpenRouter-compatible /embeddings endpoint.
type ClientEmbedder struct {
	client  *Client
	model   string
	timeout time.Duration
}

// NewClientEmbedder wraps c for single-text embedding with model. A zero
// timeout uses the package default.
func NewClientEmbedder(c *Client, model string, timeout time.Duration) *ClientEmbedder {
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &ClientEmbedder{client: c, model: model, timeout: timeout}
}

func (e *ClientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.client == nil {
		return nil, wrapProvider(ProviderOpenRouter, "embed", ErrConfigurationMissing)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	vecs, err := e.client.Embed(ctx, e.model, []string{text})
	if err != nil {
		return nil, wrapProvider(ProviderOpenRouter, "embed", err)
	}
	if len(vecs[0]) == 0 {
		return nil, wrapProvider(ProviderOpenRouter, "embed", fmt.Errorf("malformed response: empty embedding"))
	}
	return vecs[0], nil
}

// OllamaEmbedder embeds through a local Ollama runtime.
type OllamaEmbedder struct {
	client  *OllamaEmbClient
	model   string
	timeout time.Duration
}

func NewOllamaEmbedder(c *OllamaEmbClient, model string, timeout time.Duration) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &OllamaEmbedder{client: c, model: model, timeout: timeout}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.client == nil {
		return nil, wrapProvider(ProviderOllama, "embed", ErrConfigurationMissing)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	vec, err := e.client.Embed(ctx, e.model, text)
	return vec, wrapProvider(ProviderOllama, "embed", err)
}
