package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/retrieval"
)

// Options tune classification.
type Options struct {
	// MinConfidence is the floor a winning candidate must reach.
	MinConfidence float64
	// EmbedFloor discards an embedding vote whose best similarity is lower.
	EmbedFloor float64
	// EmbedScore is the fixed confidence of an accepted embedding vote.
	EmbedScore float64
	// DescribeSamples bounds the sample values in a column description.
	DescribeSamples int
}

func DefaultOptions() Options {
	return Options{MinConfidence: 0.3, EmbedFloor: 0.2, EmbedScore: 0.65, DescribeSamples: 8}
}

// ColumnClassification is the outcome for one column. An empty Role means
// no candidate reached the confidence floor.
type ColumnClassification struct {
	Column     string      `json:"column"`
	Role       Role        `json:"role,omitempty"`
	Score      float64     `json:"score"`
	Origin     Origin      `json:"origin,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Result maps roles to column names in dataset order.
type Result struct {
	Columns []ColumnClassification `json:"columns"`
	Roles   map[Role][]string      `json:"roles"`
}

// First returns the first column assigned to role.
func (r *Result) First(role Role) (string, bool) {
	if r == nil || len(r.Roles[role]) == 0 {
		return "", false
	}
	return r.Roles[role][0], true
}

// RoleOf returns the role assigned to column, or "" when unassigned.
func (r *Result) RoleOf(column string) Role {
	for _, c := range r.Columns {
		if c.Column == column {
			return c.Role
		}
	}
	return ""
}

func (r *Result) add(cc ColumnClassification) {
	r.Columns = append(r.Columns, cc)
	if cc.Role == "" {
		return
	}
	r.Roles[cc.Role] = append(r.Roles[cc.Role], cc.Column)
	// An SKU column also identifies the product.
	if cc.Role == RoleSKU {
		r.Roles[RoleProduct] = append(r.Roles[RoleProduct], cc.Column)
	}
}

// Classifier assigns one role per column. The embedder and index are
// optional; without them classification is heuristic-only.
type Classifier struct {
	catalog    *Catalog
	heuristics *Heuristics
	index      *PrototypeIndex
	emb        ai.Embedder
	log        *zap.Logger
	opt        Options
}

func New(catalog *Catalog, index *PrototypeIndex, emb ai.Embedder, logger *zap.Logger, opt Options) *Classifier {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opt.MinConfidence <= 0 {
		opt.MinConfidence = def.MinConfidence
	}
	if opt.EmbedFloor <= 0 {
		opt.EmbedFloor = def.EmbedFloor
	}
	if opt.EmbedScore <= 0 {
		opt.EmbedScore = def.EmbedScore
	}
	if opt.DescribeSamples <= 0 {
		opt.DescribeSamples = def.DescribeSamples
	}
	if index == nil && emb != nil {
		index = NewPrototypeIndex(catalog, emb)
	}
	return &Classifier{
		catalog:    catalog,
		heuristics: NewHeuristics(catalog),
		index:      index,
		emb:        emb,
		log:        logger,
		opt:        opt,
	}
}

// Catalog returns the catalog in use.
func (c *Classifier) Catalog() *Catalog { return c.catalog }

// Classify labels every column. Embedding failures never fail the call.
func (c *Classifier) Classify(ctx context.Context, cols []dataset.Column) *Result {
	res := &Result{Roles: map[Role][]string{}}
	protos := c.prototypes(ctx)
	for _, col := range cols {
		res.add(c.classifyColumn(ctx, col, protos))
	}
	c.log.Debug("classified columns",
		zap.Int("columns", len(cols)),
		zap.Int("roles", len(res.Roles)),
		zap.Bool("embedding", protos != nil))
	return res
}

// prototypes returns the warmed prototype vectors, or nil when the embedding
// vote is unavailable for this request.
func (c *Classifier) prototypes(ctx context.Context) []PrototypeEntry {
	if c.emb == nil || c.index == nil {
		return nil
	}
	entries, err := c.index.Vectors(ctx)
	if err != nil {
		c.log.Warn("prototype embeddings unavailable, using heuristics only", zap.Error(err))
		return nil
	}
	return entries
}

func (c *Classifier) classifyColumn(ctx context.Context, col dataset.Column, protos []PrototypeEntry) ColumnClassification {
	cc := ColumnClassification{Column: col.Name}
	if DetectDate(col) {
		cand := Candidate{Role: RoleDate, Score: 1.0, Origin: OriginDate}
		cc.Role, cc.Score, cc.Origin = cand.Role, cand.Score, cand.Origin
		cc.Candidates = []Candidate{cand}
		return cc
	}
	cands := c.heuristics.Score(col)
	if protos != nil {
		if vote, ok := c.embeddingVote(ctx, col, protos); ok {
			cands = append(cands, vote)
		}
	}
	cc.Candidates = Rank(cands)
	if win, ok := Merge(cands, c.opt.MinConfidence); ok {
		cc.Role, cc.Score, cc.Origin = win.Role, win.Score, win.Origin
	}
	return cc
}

func (c *Classifier) embeddingVote(ctx context.Context, col dataset.Column, protos []PrototypeEntry) (Candidate, bool) {
	vec, err := c.emb.Embed(ctx, Describe(col, c.opt.DescribeSamples))
	if err != nil {
		c.log.Debug("column embedding failed", zap.String("column", col.Name), zap.Error(err))
		return Candidate{}, false
	}
	best, bestSim := Role(""), 0.0
	for _, p := range protos {
		if sim := retrieval.CosineSim(vec, p.Embedding); best == "" || sim > bestSim {
			best, bestSim = p.Role, sim
		}
	}
	if best == "" || bestSim < c.opt.EmbedFloor {
		return Candidate{}, false
	}
	return Candidate{Role: best, Score: c.opt.EmbedScore, Origin: OriginEmbedding}, true
}

// Describe renders the column for embedding:
// "Column 'Qty' (numeric) with sample values: 1, 2, 3".
func Describe(col dataset.Column, samples int) string {
	vals := col.NonNull()
	if samples > 0 && len(vals) > samples {
		vals = vals[:samples]
	}
	return fmt.Sprintf("Column '%s' (%s) with sample values: %s", col.Name, col.Kind, strings.Join(vals, ", "))
}
