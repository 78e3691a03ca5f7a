package rag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/retrieval"
)

// lampEmbedder points text mentioning "lamp" one way and everything else
// the other.
type lampEmbedder struct{}

func (lampEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "lamp") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type fakeSynth struct {
	mu       sync.Mutex
	answer   string
	err      error
	system   string
	context  string
	question string
	deltas   []string
}

func (f *fakeSynth) Complete(ctx context.Context, systemPrompt, dataContext, question string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system, f.context, f.question = systemPrompt, dataContext, question
	return f.answer, f.err
}

type streamSynth struct{ fakeSynth }

func (f *streamSynth) Stream(ctx context.Context, systemPrompt, dataContext, question string, onDelta func(string)) (string, error) {
	for _, d := range []string{"Lamp ", "wins"} {
		onDelta(d)
	}
	return "Lamp wins", nil
}

func newService(synth ai.Synthesizer, emb ai.Embedder) *Service {
	store := retrieval.NewStore(emb, nil, retrieval.StoreOptions{Interval: -1})
	return New(Options{
		Store:       store,
		Engine:      retrieval.NewEngine(store, emb, nil),
		Synthesizer: synth,
	})
}

var lampSections = []retrieval.Section{
	{Key: "top", Value: "Lamp sells best"},
	{Key: "other", Value: "Mugs are steady"},
}

func TestIndexAndAsk(t *testing.T) {
	synth := &fakeSynth{answer: "The lamp."}
	svc := newService(synth, lampEmbedder{})

	rep := svc.Index(context.Background(), "d1", lampSections, nil)
	assert.Equal(t, IndexReport{DatasetID: "d1", Chunks: 2, Embedded: 2}, rep)

	resp := svc.Ask(context.Background(), QueryRequest{DatasetID: "d1", Query: "  which lamp? ", TopK: 1})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "The lamp.", resp.Answer)
	require.Len(t, resp.RetrievedChunks, 1)
	assert.Equal(t, "top: Lamp sells best", resp.RetrievedChunks[0].Chunk.Content)
	assert.Equal(t, "top: Lamp sells best", synth.context)
	assert.Equal(t, "which lamp?", synth.question)
	assert.Equal(t, DefaultSystemPrompt, synth.system)
}

func TestAskUnknownDataset(t *testing.T) {
	svc := newService(&fakeSynth{}, lampEmbedder{})
	resp := svc.Ask(context.Background(), QueryRequest{DatasetID: "missing", Query: "anything"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "no embeddings available for dataset")
	assert.ErrorIs(t, resp.Err, retrieval.ErrNoIndex)
	assert.NotNil(t, resp.RetrievedChunks)
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	svc := newService(&fakeSynth{}, lampEmbedder{})
	resp := svc.Ask(context.Background(), QueryRequest{DatasetID: "d1", Query: "   "})
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, ErrEmptyQuery)
}

func TestAskWithoutSynthesizer(t *testing.T) {
	svc := newService(nil, lampEmbedder{})
	svc.Index(context.Background(), "d1", lampSections, nil)
	resp := svc.Ask(context.Background(), QueryRequest{DatasetID: "d1", Query: "lamp"})
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, ai.ErrConfigurationMissing)
	assert.Contains(t, resp.Message, "provider not configured")
}

func TestAskWithoutEmbedder(t *testing.T) {
	svc := newService(&fakeSynth{}, nil)
	rep := svc.Index(context.Background(), "d1", lampSections, nil)
	assert.Equal(t, 2, rep.Chunks)
	assert.Zero(t, rep.Embedded)

	resp := svc.Ask(context.Background(), QueryRequest{DatasetID: "d1", Query: "lamp"})
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, ai.ErrConfigurationMissing)
}

func TestAskSurfacesProviderMessage(t *testing.T) {
	perr := &ai.ProviderError{Provider: "openrouter", Op: "complete", Err: errors.New("rate limited")}
	svc := newService(&fakeSynth{err: perr}, lampEmbedder{})
	svc.Index(context.Background(), "d1", lampSections, nil)
	resp := svc.Ask(context.Background(), QueryRequest{DatasetID: "d1", Query: "lamp"})
	assert.False(t, resp.Success)
	assert.Equal(t, "openrouter complete: rate limited", resp.Message)
	assert.Empty(t, resp.Answer)
	require.NotNil(t, resp.RetrievedChunks)
	assert.Empty(t, resp.RetrievedChunks)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"answer":"","retrieved_chunks":[],"message":"openrouter complete: rate limited"}`, string(b))
}

func TestAskStreamForwardsDeltas(t *testing.T) {
	synth := &streamSynth{}
	svc := newService(synth, lampEmbedder{})
	svc.Index(context.Background(), "d1", lampSections, nil)
	var got []string
	resp := svc.AskStream(context.Background(), QueryRequest{DatasetID: "d1", Query: "lamp"}, func(d string) {
		got = append(got, d)
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Lamp wins", resp.Answer)
	assert.Equal(t, []string{"Lamp ", "wins"}, got)
}

func TestContextIsTrimmedToBudget(t *testing.T) {
	synth := &fakeSynth{answer: "ok"}
	store := retrieval.NewStore(lampEmbedder{}, nil, retrieval.StoreOptions{Interval: -1})
	svc := New(Options{
		Store:         store,
		Engine:        retrieval.NewEngine(store, lampEmbedder{}, nil),
		Synthesizer:   synth,
		SystemPrompt:  "be brief",
		ContextTokens: 6,
	})
	svc.Index(context.Background(), "d1", lampSections, nil)
	resp := svc.Ask(context.Background(), QueryRequest{DatasetID: "d1", Query: "lamp"})
	require.True(t, resp.Success, resp.Message)
	// 6 tokens minus 2 for the prompt and 1 for the question leaves 12 runes
	assert.Equal(t, "top: Lamp se", synth.context)
}

func TestIngestSalesTable(t *testing.T) {
	ds := dataset.Clean("sales.csv",
		[]string{"Sale Date", "Amount", "Customer Name"},
		[][]string{
			{"2024-01-05", "120.50", "Ada"},
			{"2024-01-06", "80", "Lin"},
			{"2024-02-11", "42.10", "Ada"},
		})
	svc := newService(&fakeSynth{answer: "Ada"}, lampEmbedder{})
	out, err := svc.Ingest(context.Background(), "sales", ds)
	require.NoError(t, err)

	assert.Equal(t, []string{"Sale Date"}, out.Report.Roles["date"])
	assert.Equal(t, []string{"Amount"}, out.Report.Roles["sales"])
	require.NotNil(t, out.Report.Sales)
	assert.Len(t, out.Report.Sales.MonthlyTrend, 2)
	require.NotNil(t, out.Report.Customers)
	assert.Equal(t, "Ada", out.Report.Customers.TopCustomers[0].Customer)

	// five sections plus three preview rows, none over budget
	assert.Equal(t, 8, out.Index.Chunks)
	assert.Equal(t, 8, out.Index.Embedded)

	st, ok := svc.Stats("sales")
	require.True(t, ok)
	assert.Equal(t, 8, st.Total)
	assert.True(t, svc.Delete("sales"))
	_, ok = svc.Stats("sales")
	assert.False(t, ok)

	_, err = svc.Ingest(context.Background(), "", ds)
	assert.Error(t, err)
}
