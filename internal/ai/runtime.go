package ai

import "context"

// Provider names accepted by default_provider and embedding_provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderNone       = "none"
)

// Runtime answers one chat request. Client and OllamaClient implement it.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// StreamRuntime is implemented by runtimes that can emit partial content.
// onDelta receives each chunk in order; the full answer is their concatenation.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}
