package classifier

import "sort"

// Origin tags where a candidate came from.
type Origin string

const (
	OriginDate      Origin = "date"
	OriginHeuristic Origin = "heuristic"
	OriginEmbedding Origin = "embedding"
)

// rank orders origins for equal scores.
func (o Origin) rank() int {
	switch o {
	case OriginDate:
		return 0
	case OriginHeuristic:
		return 1
	default:
		return 2
	}
}

// Candidate is one scored role proposal for a column.
type Candidate struct {
	Role   Role    `json:"role"`
	Score  float64 `json:"score"`
	Origin Origin  `json:"origin"`
}

// Rank normalizes synonyms and returns the candidates best-first: higher
// score, then date over heuristic over embedding, then first seen. The input
// is not modified.
func Rank(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	for i, c := range cands {
		c.Role = Normalize(c.Role)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Origin.rank() < out[j].Origin.rank()
	})
	return out
}

// Merge picks the winning candidate. ok is false when there is none at or
// above floor.
func Merge(cands []Candidate, floor float64) (Candidate, bool) {
	ranked := Rank(cands)
	if len(ranked) == 0 || ranked[0].Score < floor {
		return Candidate{}, false
	}
	return ranked[0], true
}
