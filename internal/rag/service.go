// Package rag ties classification, analysis, chunk indexing and answer
// synthesis together behind two calls: Ingest/Index to load a dataset and Ask
// to query it.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/analysis"
	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/retrieval"
	"github.com/KaramelBytes/retailmind-cli/internal/utils"
)

// DefaultSystemPrompt keeps answers short and tied to the retrieved data.
const DefaultSystemPrompt = `You are a retail data analyst. Answer the question using only the data in [DATA CONTEXT].
Be concise and quote concrete figures, column names and periods from the context.
If the context does not contain the information needed, reply that the data is insufficient to answer and say what is missing.
Never invent numbers.`

// ErrEmptyQuery rejects blank questions.
var ErrEmptyQuery = errors.New("query must not be empty")

// Options wires a Service. Nil components get working defaults without an
// embedder or synthesizer.
type Options struct {
	Classifier  *classifier.Classifier
	Chunker     *retrieval.Chunker
	Store       *retrieval.Store
	Engine      *retrieval.Engine
	Synthesizer ai.Synthesizer
	Logger      *zap.Logger

	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string
	// TopK is used when a request does not set one.
	TopK int
	// ContextTokens caps the prompt (system prompt, data context and question);
	// 0 disables trimming.
	ContextTokens int
	Analysis      analysis.Options
}

// Service is safe for concurrent use.
type Service struct {
	classifier *classifier.Classifier
	chunker    *retrieval.Chunker
	store      *retrieval.Store
	engine     *retrieval.Engine
	synth      ai.Synthesizer
	log        *zap.Logger
	opt        Options
}

func New(opt Options) *Service {
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opt.Classifier == nil {
		opt.Classifier = classifier.New(nil, nil, nil, log, classifier.DefaultOptions())
	}
	if opt.Chunker == nil {
		opt.Chunker = retrieval.NewChunker(retrieval.DefaultChunkTokens)
	}
	if opt.Store == nil {
		opt.Store = retrieval.NewStore(nil, log, retrieval.StoreOptions{})
	}
	if opt.Engine == nil {
		opt.Engine = retrieval.NewEngine(opt.Store, nil, log)
	}
	if strings.TrimSpace(opt.SystemPrompt) == "" {
		opt.SystemPrompt = DefaultSystemPrompt
	}
	if opt.TopK <= 0 {
		opt.TopK = retrieval.DefaultTopK
	}
	return &Service{
		classifier: opt.Classifier,
		chunker:    opt.Chunker,
		store:      opt.Store,
		engine:     opt.Engine,
		synth:      opt.Synthesizer,
		log:        log,
		opt:        opt,
	}
}

// Classifier returns the classifier in use.
func (s *Service) Classifier() *classifier.Classifier { return s.classifier }

// IndexReport counts the chunks stored for a dataset.
type IndexReport struct {
	DatasetID string `json:"dataset_id"`
	Chunks    int    `json:"chunks"`
	Embedded  int    `json:"embedded"`
	Failed    int    `json:"failed"`
}

// Index chunks the analysis sections and preview rows and replaces whatever
// was stored for datasetID.
func (s *Service) Index(ctx context.Context, datasetID string, sections []retrieval.Section, rows []dataset.Record) IndexReport {
	chunks := s.chunker.Chunk(sections, rows)
	s.store.Put(ctx, datasetID, chunks)
	rep := IndexReport{DatasetID: datasetID, Chunks: len(chunks)}
	if st, ok := s.store.Stats(datasetID); ok {
		rep.Embedded, rep.Failed = st.Embedded, st.Failed
	}
	s.log.Info("indexed dataset",
		zap.String("dataset_id", datasetID),
		zap.Int("chunks", rep.Chunks),
		zap.Int("embedded", rep.Embedded),
		zap.Int("failed", rep.Failed))
	return rep
}

// Ingested is the outcome of loading one dataset.
type Ingested struct {
	DatasetID string             `json:"dataset_id"`
	Roles     *classifier.Result `json:"classification"`
	Report    *analysis.Report   `json:"analysis"`
	Index     IndexReport        `json:"index"`
}

// Ingest classifies, analyzes and indexes ds under datasetID.
func (s *Service) Ingest(ctx context.Context, datasetID string, ds *dataset.Dataset) (*Ingested, error) {
	if ds == nil {
		return nil, errors.New("ingest: nil dataset")
	}
	if datasetID == "" {
		return nil, errors.New("ingest: dataset id is required")
	}
	roles := s.classifier.Classify(ctx, ds.Columns)
	rep := analysis.Analyze(ds, roles, s.opt.Analysis)
	idx := s.Index(ctx, datasetID, rep.Sections(), rep.Preview)
	return &Ingested{DatasetID: datasetID, Roles: roles, Report: rep, Index: idx}, nil
}

// Stats reports what is stored for datasetID.
func (s *Service) Stats(datasetID string) (retrieval.Stats, bool) { return s.store.Stats(datasetID) }

// Delete drops a dataset's chunks.
func (s *Service) Delete(datasetID string) bool { return s.store.Delete(datasetID) }

// QueryRequest asks one question about an indexed dataset.
type QueryRequest struct {
	DatasetID string `json:"dataset_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
}

// QueryResponse carries either an answer or a failure message. Err keeps the
// underlying error for callers that branch on it.
type QueryResponse struct {
	Success         bool               `json:"success"`
	Answer          string             `json:"answer"`
	RetrievedChunks []retrieval.Scored `json:"retrieved_chunks"`
	Message         string             `json:"message"`
	Err             error              `json:"-"`
}

func failed(err error) QueryResponse {
	return QueryResponse{RetrievedChunks: []retrieval.Scored{}, Message: err.Error(), Err: err}
}

// Ask retrieves grounding chunks and synthesizes an answer. Failures are
// reported in the response, never as a Go error.
func (s *Service) Ask(ctx context.Context, req QueryRequest) QueryResponse {
	return s.ask(ctx, req, nil)
}

// streamer is implemented by synthesizers that can emit partial output.
type streamer interface {
	Stream(ctx context.Context, systemPrompt, dataContext, question string, onDelta func(string)) (string, error)
}

// AskStream is Ask with partial answers forwarded to onDelta when the
// synthesizer supports streaming.
func (s *Service) AskStream(ctx context.Context, req QueryRequest, onDelta func(string)) QueryResponse {
	return s.ask(ctx, req, onDelta)
}

func (s *Service) ask(ctx context.Context, req QueryRequest, onDelta func(string)) QueryResponse {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return failed(ErrEmptyQuery)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.opt.TopK
	}
	results, err := s.engine.Query(ctx, req.DatasetID, q, topK)
	if err != nil {
		s.log.Warn("retrieval failed", zap.String("dataset_id", req.DatasetID), zap.Error(err))
		return failed(err)
	}
	if s.synth == nil {
		return failed(fmt.Errorf("answer synthesis: %w", ai.ErrConfigurationMissing))
	}
	dataContext := s.fitContext(retrieval.Context(results), q)

	var answer string
	if st, ok := s.synth.(streamer); ok && onDelta != nil {
		answer, err = st.Stream(ctx, s.opt.SystemPrompt, dataContext, q, onDelta)
	} else {
		answer, err = s.synth.Complete(ctx, s.opt.SystemPrompt, dataContext, q)
	}
	if err != nil {
		s.log.Warn("answer synthesis failed",
			zap.String("dataset_id", req.DatasetID),
			zap.Int("retrieved", len(results)),
			zap.Error(err))
		return failed(err)
	}
	return QueryResponse{Success: true, Answer: answer, RetrievedChunks: results}
}

// fitContext trims the data context so the whole prompt stays within
// ContextTokens.
func (s *Service) fitContext(dataContext, question string) string {
	if s.opt.ContextTokens <= 0 {
		return dataContext
	}
	room := s.opt.ContextTokens - utils.CountTokens(s.opt.SystemPrompt) - utils.CountTokens(question)
	if utils.CountTokens(dataContext) <= room {
		return dataContext
	}
	s.log.Debug("trimming data context",
		zap.Int("context_tokens", utils.CountTokens(dataContext)),
		zap.Int("room", room))
	return utils.TruncateToTokenLimit(dataContext, room)
}
