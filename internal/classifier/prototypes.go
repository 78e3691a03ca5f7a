package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
)

// PrototypeEntry is a role description with its embedding; Embedding is nil
// until the index has been warmed.
type PrototypeEntry struct {
	Role        Role      `json:"role"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
}

// warmTimeout bounds the shared warm-up, which outlives any single caller.
const warmTimeout = 60 * time.Second

// PrototypeIndex lazily embeds catalog descriptions once per process.
// Build one at startup and share it; it is safe for concurrent use.
type PrototypeIndex struct {
	catalog *Catalog
	emb     ai.Embedder
	group   singleflight.Group

	mu      sync.RWMutex
	entries []PrototypeEntry
}

func NewPrototypeIndex(c *Catalog, emb ai.Embedder) *PrototypeIndex {
	if c == nil {
		c = DefaultCatalog()
	}
	return &PrototypeIndex{catalog: c, emb: emb}
}

// Ready reports whether prototype vectors are cached.
func (p *PrototypeIndex) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries != nil
}

// Vectors returns the embedded prototypes, computing them on first use.
// Concurrent first calls share one warm-up, detached from the first caller's
// cancellation; a failed warm-up is not cached. Each caller still stops
// waiting when its own ctx is done.
func (p *PrototypeIndex) Vectors(ctx context.Context) ([]PrototypeEntry, error) {
	p.mu.RLock()
	entries := p.entries
	p.mu.RUnlock()
	if entries != nil {
		return entries, nil
	}
	if p.emb == nil {
		return nil, ai.ErrConfigurationMissing
	}
	ch := p.group.DoChan(p.catalog.Version, func() (any, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), warmTimeout)
		defer cancel()
		p.mu.RLock()
		cached := p.entries
		p.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		built := make([]PrototypeEntry, 0, len(p.catalog.Prototypes))
		for _, proto := range p.catalog.Prototypes {
			vec, err := p.emb.Embed(wctx, proto.Description)
			if err != nil {
				return nil, fmt.Errorf("embed prototype %s: %w", proto.Role, err)
			}
			built = append(built, PrototypeEntry{Role: proto.Role, Description: proto.Description, Embedding: vec})
		}
		p.mu.Lock()
		p.entries = built
		p.mu.Unlock()
		return built, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]PrototypeEntry), nil
	}
}
