package retrieval

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
)

// fakeEmbedder returns fixed vectors per text and fails for texts in fail.
type fakeEmbedder struct {
	vecs  map[string][]float32
	fail  map[string]bool
	calls int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail[text] {
		return nil, &ai.ProviderError{Provider: "fake", Op: "embed", Err: errors.New("boom")}
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func fastStore(emb ai.Embedder) *Store {
	return NewStore(emb, nil, StoreOptions{Interval: -1})
}

func chunks(contents ...string) []Chunk {
	out := make([]Chunk, len(contents))
	for i, c := range contents {
		out[i] = Chunk{Kind: KindAnalysisSummary, Content: c, SourceLabel: c}
	}
	return out
}

func TestCosineSim(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 4}
	assert.InDelta(t, CosineSim(a, b), CosineSim(b, a), 1e-12)
	assert.InDelta(t, 1.0, CosineSim(a, a), 1e-9)
	assert.Equal(t, 0.0, CosineSim(a, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSim([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSim(nil, nil))
}

func TestChunkerRendersScalarsAndNested(t *testing.T) {
	c := NewChunker(100)
	got := c.Chunk([]Section{
		{Key: "rows", Value: 42},
		{Key: "mean", Value: math.NaN()},
		{Key: "basic_stats", Value: map[string]any{"total": float32(1.5), "bad": math.Inf(1)}},
		{Key: "when", Value: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
	}, nil)
	require.Len(t, got, 4)
	assert.Equal(t, "rows: 42", got[0].Content)
	assert.Equal(t, "mean: null", got[1].Content)
	assert.Equal(t, `{"basic_stats":{"bad":null,"total":1.5}}`, got[2].Content)
	assert.Equal(t, "when: 2024-01-05T00:00:00Z", got[3].Content)
	for _, ch := range got {
		assert.Equal(t, KindAnalysisSummary, ch.Kind)
	}
}

func TestChunkerRowsKeepColumnOrder(t *testing.T) {
	rows := []dataset.Record{
		{{Name: "z", Value: 1.0}, {Name: "a", Value: math.NaN()}},
		{{Name: "z", Value: 2.0}, {Name: "a", Value: "x"}},
	}
	got := NewChunker(0).Chunk(nil, rows)
	require.Len(t, got, 2)
	assert.Equal(t, Chunk{Kind: KindTableRow, Content: `{"z":1,"a":null}`, SourceLabel: "row_0"}, got[0])
	assert.Equal(t, "row_1", got[1].SourceLabel)
}

func TestChunkerSplitsOversizedText(t *testing.T) {
	c := NewChunker(2) // 8 runes
	text := strings.Repeat("ş", 20)
	got := c.Chunk([]Section{{Key: "k", Value: text}}, nil)
	// "k: " + 20 runes = 23 runes -> 8, 8, 7
	require.Len(t, got, 3)
	var joined strings.Builder
	for _, ch := range got {
		assert.Equal(t, "k", ch.SourceLabel)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), c.Budget())
		joined.WriteString(ch.Content)
	}
	assert.Equal(t, "k: "+text, joined.String())
	assert.Equal(t, 7, utf8.RuneCountInString(got[2].Content))
}

type summary struct {
	Name    string   `json:"name"`
	Skipped string   `json:"-"`
	Empty   []string `json:"empty,omitempty"`
	Score   float64  `json:"score"`
}

func TestChunkerIsDeterministic(t *testing.T) {
	analysis := SectionsFromMap(map[string]any{
		"b": []any{1, "two", summary{Name: "x", Score: math.NaN()}},
		"a": map[string]float64{"y": 1, "x": 2},
	})
	rows := []dataset.Record{{{Name: "q", Value: 3.0}}}
	c := NewChunker(4)
	first := c.Chunk(analysis, rows)
	second := c.Chunk(analysis, rows)
	assert.Equal(t, first, second)
	assert.Equal(t, "a", first[0].SourceLabel)
	for _, ch := range first {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 16)
	}

	whole := NewChunker(1000).Chunk(analysis, nil)
	assert.Equal(t, `{"b":[1,"two",{"name":"x","score":null}]}`, whole[1].Content)
}

func TestStorePutAndReplace(t *testing.T) {
	emb := &fakeEmbedder{}
	s := fastStore(emb)
	assert.Equal(t, 2, s.Put(context.Background(), "A", chunks("one", "two")))
	assert.Equal(t, 1, s.Put(context.Background(), "A", chunks("three")))

	got := s.Get("A")
	require.Len(t, got, 1)
	assert.Equal(t, "three", got[0].Chunk.Content)
	assert.Nil(t, s.Get("B"))
	assert.Equal(t, 1, s.Len())
}

func TestStoreKeepsIndexWhenPutIsInterrupted(t *testing.T) {
	s := fastStore(&fakeEmbedder{})
	require.Equal(t, 2, s.Put(context.Background(), "A", chunks("one", "two")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, s.Put(ctx, "A", chunks("three", "four")))
	got := s.Get("A")
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Chunk.Content)
	assert.True(t, got[0].Embedded())

	// nothing worth keeping: the partial list is stored as usual
	assert.Equal(t, 0, s.Put(ctx, "B", chunks("x")))
	b := s.Get("B")
	require.Len(t, b, 1)
	assert.Contains(t, b[0].Err, "context canceled")
}

func TestStoreIsolatesFailures(t *testing.T) {
	emb := &fakeEmbedder{fail: map[string]bool{"bad": true}}
	for _, conc := range []int{1, 4} {
		s := NewStore(emb, nil, StoreOptions{Interval: -1, Concurrency: conc})
		n := s.Put(context.Background(), "A", chunks("ok1", "bad", "ok2"))
		assert.Equal(t, 2, n)
		got := s.Get("A")
		require.Len(t, got, 3)
		assert.Equal(t, []string{"ok1", "bad", "ok2"}, []string{got[0].Chunk.Content, got[1].Chunk.Content, got[2].Chunk.Content})
		assert.False(t, got[1].Embedded())
		assert.Contains(t, got[1].Err, "boom")
		st, ok := s.Stats("A")
		require.True(t, ok)
		assert.Equal(t, Stats{DatasetID: "A", Total: 3, Embedded: 2, Failed: 1, UpdatedAt: st.UpdatedAt}, st)
	}
}

func TestStoreWithoutEmbedder(t *testing.T) {
	s := fastStore(nil)
	assert.Equal(t, 0, s.Put(context.Background(), "A", chunks("x", "y")))
	got := s.Get("A")
	require.Len(t, got, 2)
	for _, e := range got {
		assert.False(t, e.Embedded())
		assert.Empty(t, e.Err)
	}
}

func TestStorePacesCalls(t *testing.T) {
	emb := &fakeEmbedder{}
	s := NewStore(emb, nil, StoreOptions{Interval: 20 * time.Millisecond})
	start := time.Now()
	s.Put(context.Background(), "A", chunks("a", "b", "c"))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewStore(nil, nil, StoreOptions{Interval: -1, MaxDatasets: 2})
	ctx := context.Background()
	s.Put(ctx, "A", chunks("a"))
	s.Put(ctx, "B", chunks("b"))
	s.Get("A")
	s.Put(ctx, "C", chunks("c"))
	assert.Equal(t, 2, s.Len())
	assert.NotNil(t, s.Get("A"))
	assert.Nil(t, s.Get("B"))
	assert.True(t, s.Delete("A"))
	assert.False(t, s.Delete("A"))
}

func TestStoreTTL(t *testing.T) {
	s := NewStore(nil, nil, StoreOptions{Interval: -1, TTL: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.Put(context.Background(), "A", chunks("a"))
	now = now.Add(2 * time.Minute)
	assert.Nil(t, s.Get("A"))
	assert.Equal(t, 0, s.Len())
}

func TestStoreConcurrentReadersSeeWholeLists(t *testing.T) {
	s := fastStore(&fakeEmbedder{})
	ctx := context.Background()
	s.Put(ctx, "A", chunks("a1", "a2"))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Put(ctx, "A", chunks("b1", "b2", "b3"))
		}()
		go func() {
			defer wg.Done()
			n := len(s.Get("A"))
			assert.True(t, n == 2 || n == 3, "observed %d entries", n)
		}()
	}
	wg.Wait()
}

func TestEngineRanksTopK(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"east": {1, 0},
		"west": {0, 1},
		"near": {0.9, 0.1},
		"q":    {1, 0},
	}}
	s := fastStore(emb)
	s.Put(context.Background(), "A", chunks("east", "west", "near"))
	e := NewEngine(s, emb, nil)

	got, err := e.Query(context.Background(), "A", "q", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "east", got[0].Chunk.Content)
	assert.Equal(t, "near", got[1].Chunk.Content)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	assert.Equal(t, "east\nnear", Context(got))

	all, err := e.Query(context.Background(), "A", "q", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func TestEngineTiesKeepInsertionOrder(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{"x": {1, 0}, "y": {1, 0}, "q": {1, 0}}}
	s := fastStore(emb)
	s.Put(context.Background(), "A", chunks("y", "x"))
	got, err := NewEngine(s, emb, nil).Query(context.Background(), "A", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, "y", got[0].Chunk.Content)
	assert.Equal(t, "x", got[1].Chunk.Content)
}

func TestEngineSkipsAbsentEmbeddings(t *testing.T) {
	emb := &fakeEmbedder{fail: map[string]bool{"bad": true}, vecs: map[string][]float32{"q": {0, 0, 1}}}
	s := fastStore(emb)
	s.Put(context.Background(), "A", chunks("bad", "good"))
	got, err := NewEngine(s, emb, nil).Query(context.Background(), "A", "q", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].Chunk.Content)
}

func TestEngineErrors(t *testing.T) {
	emb := &fakeEmbedder{fail: map[string]bool{"broken query": true}}
	s := fastStore(emb)
	e := NewEngine(s, emb, nil)

	_, err := e.Query(context.Background(), "missing", "q", 3)
	assert.ErrorIs(t, err, ErrNoIndex)

	s.Put(context.Background(), "A", chunks("a"))
	_, err = e.Query(context.Background(), "A", "broken query", 3)
	var pe *ai.ProviderError
	assert.ErrorAs(t, err, &pe)

	_, err = NewEngine(s, nil, nil).Query(context.Background(), "A", "q", 3)
	assert.ErrorIs(t, err, ai.ErrConfigurationMissing)

	unembedded := fastStore(nil)
	unembedded.Put(context.Background(), "A", chunks("a"))
	_, err = NewEngine(unembedded, emb, nil).Query(context.Background(), "A", "q", 3)
	assert.ErrorIs(t, err, ErrNoIndex)
}
