package classifier

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
)

// Name and value rule confidences. Name matches outrank value-shape rules.
const (
	scoreExact     = 0.9
	scoreCompound  = 0.75
	scoreNear      = 0.6
	scoreCodeShape = 0.55
	scoreWhole     = 0.5
	scorePositive  = 0.4

	nearSimilarity = 0.8
	nearMinRunes   = 4

	sampleLimit = 500
)

var codeShape = regexp.MustCompile(`^[A-Za-z0-9\-_/]{4,32}$`)

// Heuristics scores a column against the catalog without any external call.
type Heuristics struct {
	catalog *Catalog
}

func NewHeuristics(c *Catalog) *Heuristics {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Heuristics{catalog: c}
}

// Score returns heuristic candidates in catalog order, name rules first.
func (h *Heuristics) Score(col dataset.Column) []Candidate {
	tokens := Tokenize(col.Name)
	var out []Candidate
	for _, p := range h.catalog.Prototypes {
		if s := nameScore(p, tokens); s > 0 {
			out = append(out, Candidate{Role: p.Role, Score: s, Origin: OriginHeuristic})
		}
	}
	return append(out, valueCandidates(col, out)...)
}

func nameScore(p Prototype, tokens []string) float64 {
	if len(p.Pair[0]) > 0 && hasAny(tokens, p.Pair[0]) && hasAny(tokens, p.Pair[1]) {
		return scoreExact
	}
	best := 0.0
	for _, tok := range tokens {
		for _, kw := range p.Keywords {
			switch {
			case tok == kw:
				return scoreExact
			case utf8.RuneCountInString(kw) >= 3 && tok != kw &&
				(strings.HasPrefix(tok, kw) || strings.HasSuffix(tok, kw)):
				best = math.Max(best, scoreCompound)
			case utf8.RuneCountInString(tok) >= nearMinRunes && utf8.RuneCountInString(kw) >= nearMinRunes &&
				Similarity(tok, kw) >= nearSimilarity:
				best = math.Max(best, scoreNear)
			}
		}
		for _, kw := range p.Weak {
			if tok == kw || strings.HasSuffix(tok, kw) {
				best = math.Max(best, scoreCompound)
			}
		}
	}
	return best
}

func hasAny(tokens, set []string) bool {
	for _, t := range tokens {
		for _, s := range set {
			if t == s {
				return true
			}
		}
	}
	return false
}

// valueCandidates applies the distribution rules to a sample of the values.
// prior holds the name candidates already found.
func valueCandidates(col dataset.Column, prior []Candidate) []Candidate {
	var out []Candidate
	if col.IsNumeric() {
		nums := col.Numbers()
		if len(nums) > sampleLimit {
			nums = nums[:sampleLimit]
		}
		if len(nums) == 0 {
			return nil
		}
		whole, positive := 0, 0
		distinct := make(map[float64]struct{}, len(nums))
		for _, x := range nums {
			if x == math.Trunc(x) {
				whole++
			}
			if x > 0 {
				positive++
			}
			distinct[x] = struct{}{}
		}
		n := float64(len(nums))
		if float64(whole)/n >= 0.9 && float64(len(distinct))/n <= 0.5 {
			out = append(out, Candidate{Role: RoleQuantity, Score: scoreWhole, Origin: OriginHeuristic})
		}
		if float64(positive)/n >= 0.9 && maxScore(prior, out) < scoreWhole {
			out = append(out, Candidate{Role: RoleSales, Score: scorePositive, Origin: OriginHeuristic})
		}
		return out
	}
	vals := col.NonNull()
	if len(vals) > sampleLimit {
		vals = vals[:sampleLimit]
	}
	if len(vals) == 0 {
		return nil
	}
	codes := 0
	for _, v := range vals {
		if isCode(v) {
			codes++
		}
	}
	if float64(codes)/float64(len(vals)) >= 0.8 {
		out = append(out, Candidate{Role: RoleSKU, Score: scoreCodeShape, Origin: OriginHeuristic})
	}
	return out
}

// isCode reports a short alphanumeric code with at least one digit, so plain
// words such as names do not look like SKUs.
func isCode(v string) bool {
	v = strings.TrimSpace(v)
	if !codeShape.MatchString(v) {
		return false
	}
	return strings.IndexFunc(v, unicode.IsDigit) >= 0
}

func maxScore(lists ...[]Candidate) float64 {
	best := 0.0
	for _, l := range lists {
		for _, c := range l {
			best = math.Max(best, c.Score)
		}
	}
	return best
}

// Tokenize lower-cases a column name and splits it on separators and
// camelCase boundaries: "unitPrice_EUR" -> [unit price eur].
func Tokenize(name string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '/' || r == '(' || r == ')' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return tokens
}

// Similarity is 1 minus the Levenshtein distance normalized by the longer
// string's rune count.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein counts single-rune insertions, deletions and substitutions
// using two rolling rows.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
