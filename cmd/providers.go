package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/analysis"
	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	cfgpkg "github.com/KaramelBytes/retailmind-cli/internal/config"
	"github.com/KaramelBytes/retailmind-cli/internal/rag"
	"github.com/KaramelBytes/retailmind-cli/internal/retrieval"
)

const (
	defaultModel       = "openai/gpt-4o-mini"
	defaultOllamaHost  = "http://127.0.0.1:11434"
	defaultOllamaEmbed = "nomic-embed-text"
	defaultRemoteEmbed = "openai/text-embedding-3-small"
)

// normalizeProvider maps aliases onto registered provider names.
func normalizeProvider(name string) string {
	switch p := strings.ToLower(strings.TrimSpace(name)); p {
	case "":
		return ""
	case "local", "ollama":
		return ai.ProviderOllama
	case "openai", "anthropic", "google", "gemini", "meta", "llama", "openrouter":
		return ai.ProviderOpenRouter
	default:
		return p
	}
}

// runtimeConfig translates the global config into provider knobs.
func runtimeConfig(c *cfgpkg.Global) ai.RuntimeConfig {
	rc := ai.RuntimeConfig{
		HTTPTimeout: 60 * time.Second,
		RetryMax:    3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		Host:        defaultOllamaHost,
	}
	c = orEmpty(c)
	if c.HTTPTimeoutSec > 0 {
		rc.HTTPTimeout = time.Duration(c.HTTPTimeoutSec) * time.Second
	}
	if c.RetryMaxAttempts > 0 {
		rc.RetryMax = c.RetryMaxAttempts
	}
	if c.RetryBaseDelayMs > 0 {
		rc.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	}
	if c.RetryMaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	}
	rc.APIKey = c.APIKey
	if rc.APIKey == "" {
		rc.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if h := strings.TrimSpace(c.OllamaHost); h != "" {
		rc.Host = h
	}
	return rc
}

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

func buildRuntime(c *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	c = orEmpty(c)
	providerName := normalizeProvider(opts.ProviderFlag)
	if providerName == "" {
		providerName = normalizeProvider(c.DefaultProvider)
	}
	if providerName == "" {
		providerName = ai.ProviderOpenRouter
	}

	rc := runtimeConfig(c)
	if providerName == ai.ProviderOllama {
		if h := strings.TrimSpace(opts.OllamaHost); h != "" {
			rc.Host = h
		}
		if c.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(c.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s", providerName)
	}
	return client, providerName, nil
}

func selectModel(c *cfgpkg.Global, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c != nil && c.DefaultModel != "" {
		return c.DefaultModel
	}
	return defaultModel
}

// buildEmbedder returns nil when no embedding provider is usable; callers
// then run on heuristics alone.
func buildEmbedder(c *cfgpkg.Global) (ai.Embedder, error) {
	c = orEmpty(c)
	provider := normalizeProvider(c.EmbeddingProvider)
	if provider == "" || provider == ai.ProviderNone {
		return nil, nil
	}
	rc := runtimeConfig(c)
	rc.EmbedModel = c.EmbeddingModel
	if rc.EmbedModel == "" {
		if provider == ai.ProviderOllama {
			rc.EmbedModel = defaultOllamaEmbed
		} else {
			rc.EmbedModel = defaultRemoteEmbed
		}
	}
	if provider == ai.ProviderOllama && c.OllamaTimeoutSec > 0 {
		rc.EmbedTimeout = time.Duration(c.OllamaTimeoutSec) * time.Second
	}
	emb, err := ai.GetEmbedder(provider, rc)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return emb, nil
}

func buildClassifier(c *cfgpkg.Global, emb ai.Embedder, log *zap.Logger) *classifier.Classifier {
	opt := classifier.DefaultOptions()
	if c != nil && c.MinConfidence > 0 {
		opt.MinConfidence = c.MinConfidence
	}
	return classifier.New(nil, nil, emb, log, opt)
}

func analysisOptions(c *cfgpkg.Global, previewRows int) analysis.Options {
	opt := analysis.DefaultOptions()
	if c != nil && c.PreviewRows > 0 {
		opt.PreviewRows = c.PreviewRows
	}
	if previewRows > 0 {
		opt.PreviewRows = previewRows
	}
	return opt
}

type serviceOptions struct {
	Provider    string
	Model       string
	PreviewRows int
	TopK        int
}

// buildService wires classifier, chunker, store, engine and synthesizer from
// the config. A missing API key surfaces later as a "provider not configured"
// answer, not as a build error.
func buildService(c *cfgpkg.Global, opts serviceOptions, log *zap.Logger) (*rag.Service, error) {
	c = orEmpty(c)
	if log == nil {
		log = zap.NewNop()
	}
	emb, err := buildEmbedder(c)
	if err != nil {
		return nil, err
	}
	if emb == nil {
		log.Warn("no embedding provider configured; classification uses heuristics and retrieval is disabled")
	}

	rt, provider, err := buildRuntime(c, runtimeOptions{ProviderFlag: opts.Provider})
	if err != nil {
		return nil, err
	}
	model := selectModel(c, opts.Model)
	synth := ai.NewRuntimeSynthesizer(rt, ai.SynthesizerOptions{
		Provider:    provider,
		Model:       model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})

	store := retrieval.NewStore(emb, log, retrieval.StoreOptions{
		Interval:    time.Duration(c.EmbedIntervalMs) * time.Millisecond,
		Concurrency: c.EmbedConcurrency,
		MaxDatasets: c.StoreMaxDatasets,
		TTL:         time.Duration(c.StoreTTLMin) * time.Minute,
	})

	topK := opts.TopK
	if topK <= 0 {
		topK = c.RetrievalTopK
	}
	budget, _ := ai.PromptBudget(model, c.MaxTokens)

	return rag.New(rag.Options{
		Classifier:    buildClassifier(c, emb, log),
		Chunker:       retrieval.NewChunker(c.ChunkTokens),
		Store:         store,
		Engine:        retrieval.NewEngine(store, emb, log),
		Synthesizer:   synth,
		Logger:        log,
		TopK:          topK,
		ContextTokens: budget,
		Analysis:      analysisOptions(c, opts.PreviewRows),
	}), nil
}

// orEmpty substitutes zero values when no config was loaded; every builder
// falls back to its own defaults.
func orEmpty(c *cfgpkg.Global) *cfgpkg.Global {
	if c == nil {
		return &cfgpkg.Global{}
	}
	return c
}

// parseDelimiter accepts ',', ';', '|' and tab; empty means auto-detect.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case ";":
		return ';', nil
	case "|":
		return '|', nil
	case "\t", "tab", "\\t":
		return '\t', nil
	default:
		return 0, fmt.Errorf("unsupported --delimiter: %s", s)
	}
}
