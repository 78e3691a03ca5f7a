package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
)

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 5

// ErrNoIndex means the dataset has no stored entries with embeddings.
var ErrNoIndex = errors.New("no embeddings available for dataset")

// Scored is a retrieved chunk with its similarity to the query.
type Scored struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Engine ranks stored chunks against a query embedding.
type Engine struct {
	store *Store
	emb   ai.Embedder
	log   *zap.Logger
}

func NewEngine(store *Store, emb ai.Embedder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, emb: emb, log: logger}
}

// Query returns at most topK chunks best-first; equal scores keep insertion
// order. Entries without embeddings are skipped.
func (e *Engine) Query(ctx context.Context, datasetID, text string, topK int) ([]Scored, error) {
	entries := e.store.Get(datasetID)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoIndex, datasetID)
	}
	if e.emb == nil {
		return nil, fmt.Errorf("embed query: %w", ai.ErrConfigurationMissing)
	}
	embedded := 0
	for _, en := range entries {
		if en.Embedded() {
			embedded++
		}
	}
	if embedded == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoIndex, datasetID)
	}
	q, err := e.emb.Embed(ctx, text)
	if err != nil {
		var pe *ai.ProviderError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ai.ProviderError{Op: "embed query", Err: err}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	scored := make([]Scored, 0, embedded)
	for _, en := range entries {
		if !en.Embedded() {
			continue
		}
		scored = append(scored, Scored{Chunk: en.Chunk, Score: CosineSim(q, en.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	e.log.Debug("retrieved chunks",
		zap.String("dataset_id", datasetID),
		zap.Int("candidates", embedded),
		zap.Int("returned", len(scored)))
	return scored, nil
}

// Context joins the retrieved chunk contents with newlines.
func Context(results []Scored) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return strings.Join(parts, "\n")
}
