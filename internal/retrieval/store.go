package retrieval

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
)

// Entry is a stored chunk. Embedding is nil when the call failed (Err set)
// or no embedder was configured; such entries are kept but never scored.
type Entry struct {
	Chunk     Chunk     `json:"chunk"`
	Embedding []float32 `json:"-"`
	Err       string    `json:"error,omitempty"`
}

// Embedded reports whether the entry can take part in retrieval.
func (e Entry) Embedded() bool { return len(e.Embedding) > 0 }

// StoreOptions tune embedding and retention.
type StoreOptions struct {
	// Interval paces embedding calls; 0 means 50ms, negative disables pacing.
	Interval time.Duration
	// Concurrency > 1 embeds in parallel with at most that many calls in flight.
	Concurrency int
	// MaxDatasets evicts the least recently used dataset beyond this count;
	// 0 means 64, negative means unbounded.
	MaxDatasets int
	// TTL drops datasets not written for this long; 0 keeps them.
	TTL time.Duration
}

// Stats summarizes one dataset's entries.
type Stats struct {
	DatasetID string    `json:"dataset_id"`
	Total     int       `json:"total"`
	Embedded  int       `json:"embedded"`
	Failed    int       `json:"failed"`
	UpdatedAt time.Time `json:"updated_at"`
}

type storeItem struct {
	id      string
	entries []Entry
	stats   Stats
}

// Store holds per-dataset entries in memory. Put replaces a dataset's
// entries atomically; readers see either the old or the new list.
type Store struct {
	emb ai.Embedder
	log *zap.Logger
	opt StoreOptions
	now func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
}

func NewStore(emb ai.Embedder, logger *zap.Logger, opt StoreOptions) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opt.Interval == 0 {
		opt.Interval = 50 * time.Millisecond
	}
	if opt.MaxDatasets == 0 {
		opt.MaxDatasets = 64
	}
	return &Store{
		emb:   emb,
		log:   logger,
		opt:   opt,
		now:   time.Now,
		items: make(map[string]*list.Element),
		lru:   list.New(),
	}
}

// HasEmbedder reports whether Put will attempt embeddings.
func (s *Store) HasEmbedder() bool { return s.emb != nil }

// Put embeds chunks and replaces any entries stored for datasetID. Per-chunk
// failures are recorded on the entry and never abort the batch. It returns
// the number of embedded entries. When ctx ends mid-batch and the dataset
// already holds embedded entries, those are kept and Put returns 0.
func (s *Store) Put(ctx context.Context, datasetID string, chunks []Chunk) int {
	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = Entry{Chunk: c}
	}
	if s.emb != nil && len(entries) > 0 {
		s.embedAll(ctx, entries)
	}
	st := Stats{DatasetID: datasetID, Total: len(entries), UpdatedAt: s.now()}
	for _, e := range entries {
		switch {
		case e.Embedded():
			st.Embedded++
		case e.Err != "":
			st.Failed++
		}
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		if prev := s.lookupLocked(datasetID); prev != nil && prev.stats.Embedded > 0 {
			s.mu.Unlock()
			s.log.Warn("embedding interrupted; keeping previous entries",
				zap.String("dataset_id", datasetID),
				zap.Int("embedded", st.Embedded),
				zap.Int("total", st.Total),
				zap.Error(ctx.Err()))
			return 0
		}
		s.log.Warn("embedding interrupted; storing partial entries",
			zap.String("dataset_id", datasetID),
			zap.Int("embedded", st.Embedded),
			zap.Int("total", st.Total))
	}
	if el, ok := s.items[datasetID]; ok {
		it := el.Value.(*storeItem)
		it.entries, it.stats = entries, st
		s.lru.MoveToFront(el)
	} else {
		s.items[datasetID] = s.lru.PushFront(&storeItem{id: datasetID, entries: entries, stats: st})
	}
	evicted := s.evictLocked()
	s.mu.Unlock()

	for _, id := range evicted {
		s.log.Info("evicted dataset from vector store", zap.String("dataset_id", id))
	}
	s.log.Debug("stored dataset entries",
		zap.String("dataset_id", datasetID),
		zap.Int("total", st.Total),
		zap.Int("embedded", st.Embedded),
		zap.Int("failed", st.Failed))
	return st.Embedded
}

func (s *Store) limiter() *rate.Limiter {
	if s.opt.Interval < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := 1
	if s.opt.Concurrency > 1 {
		burst = s.opt.Concurrency
	}
	return rate.NewLimiter(rate.Every(s.opt.Interval), burst)
}

func (s *Store) embedAll(ctx context.Context, entries []Entry) {
	lim := s.limiter()
	embedOne := func(i int) {
		if err := lim.Wait(ctx); err != nil {
			entries[i].Err = err.Error()
			return
		}
		vec, err := s.emb.Embed(ctx, entries[i].Chunk.Content)
		if err != nil {
			entries[i].Err = err.Error()
			s.log.Debug("chunk embedding failed",
				zap.String("source", entries[i].Chunk.SourceLabel), zap.Error(err))
			return
		}
		entries[i].Embedding = vec
	}
	if s.opt.Concurrency <= 1 {
		for i := range entries {
			embedOne(i)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(s.opt.Concurrency)
	for i := range entries {
		g.Go(func() error {
			embedOne(i)
			return nil
		})
	}
	_ = g.Wait()
}

// Get returns a copy of the dataset's entries in insertion order, or nil.
func (s *Store) Get(datasetID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.lookupLocked(datasetID)
	if it == nil {
		return nil
	}
	out := make([]Entry, len(it.entries))
	copy(out, it.entries)
	return out
}

// Stats returns counts for a dataset.
func (s *Store) Stats(datasetID string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.lookupLocked(datasetID)
	if it == nil {
		return Stats{}, false
	}
	return it.stats, true
}

// Delete drops a dataset and reports whether it existed.
func (s *Store) Delete(datasetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[datasetID]
	if !ok {
		return false
	}
	s.lru.Remove(el)
	delete(s.items, datasetID)
	return true
}

// Len returns the number of datasets held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// lookupLocked returns the live item, expiring it first when its TTL passed.
func (s *Store) lookupLocked(datasetID string) *storeItem {
	el, ok := s.items[datasetID]
	if !ok {
		return nil
	}
	it := el.Value.(*storeItem)
	if s.opt.TTL > 0 && s.now().Sub(it.stats.UpdatedAt) > s.opt.TTL {
		s.lru.Remove(el)
		delete(s.items, datasetID)
		return nil
	}
	s.lru.MoveToFront(el)
	return it
}

func (s *Store) evictLocked() []string {
	if s.opt.MaxDatasets < 0 {
		return nil
	}
	var evicted []string
	for s.lru.Len() > s.opt.MaxDatasets {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		it := oldest.Value.(*storeItem)
		s.lru.Remove(oldest)
		delete(s.items, it.id)
		evicted = append(evicted, it.id)
	}
	return evicted
}
