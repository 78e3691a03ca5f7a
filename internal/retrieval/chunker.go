// Package retrieval chunks analysis output, stores per-dataset embeddings and
// ranks chunks against a query by cosine similarity.
package retrieval

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/utils"
)

// DefaultChunkTokens is the per-chunk token budget when none is configured.
const DefaultChunkTokens = 500

// ChunkKind tells where a chunk's text came from.
type ChunkKind string

const (
	KindAnalysisSummary ChunkKind = "analysis_summary"
	KindTableRow        ChunkKind = "table_row"
)

// Chunk is the unit of retrieval. Content never exceeds the chunker budget
// in runes.
type Chunk struct {
	Kind        ChunkKind `json:"kind"`
	Content     string    `json:"content"`
	SourceLabel string    `json:"source_label"`
}

// Section is one top-level key of an analysis result, in order.
type Section struct {
	Key   string
	Value any
}

// Chunker splits analysis sections and preview rows into bounded chunks.
type Chunker struct {
	budget int
}

// NewChunker budgets tokens×4 characters per chunk; tokens <= 0 uses
// DefaultChunkTokens.
func NewChunker(tokens int) *Chunker {
	if tokens <= 0 {
		tokens = DefaultChunkTokens
	}
	return &Chunker{budget: utils.CharBudget(tokens)}
}

// Budget returns the per-chunk character budget.
func (c *Chunker) Budget() int { return c.budget }

// Chunk is pure: identical input yields an identical sequence.
func (c *Chunker) Chunk(analysis []Section, rows []dataset.Record) []Chunk {
	var out []Chunk
	for _, s := range analysis {
		out = c.appendSplit(out, KindAnalysisSummary, s.Key, renderSection(s))
	}
	for i, r := range rows {
		b, err := json.Marshal(Normalize(r))
		if err != nil {
			b = []byte(fmt.Sprintf("%q", err.Error()))
		}
		out = c.appendSplit(out, KindTableRow, "row_"+strconv.Itoa(i), string(b))
	}
	return out
}

// renderSection writes nested values as {"key": value} JSON and scalars as
// "key: value".
func renderSection(s Section) string {
	v := Normalize(s.Value)
	switch v.(type) {
	case dataset.Record, []any, map[string]any:
		b, err := json.Marshal(dataset.Record{{Name: s.Key, Value: v}})
		if err != nil {
			return s.Key + ": " + err.Error()
		}
		return string(b)
	}
	return s.Key + ": " + scalarText(v)
}

func scalarText(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// appendSplit cuts text into consecutive slices of exactly budget runes; the
// last slice may be shorter.
func (c *Chunker) appendSplit(out []Chunk, kind ChunkKind, label, text string) []Chunk {
	if utf8.RuneCountInString(text) <= c.budget {
		return append(out, Chunk{Kind: kind, Content: text, SourceLabel: label})
	}
	runes := []rune(text)
	for start := 0; start < len(runes); start += c.budget {
		end := start + c.budget
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Chunk{Kind: kind, Content: string(runes[start:end]), SourceLabel: label})
	}
	return out
}
