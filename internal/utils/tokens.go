package utils

import "strings"

// CharsPerToken is the rune-per-token ratio behind every prompt budget.
const CharsPerToken = 4

// CountTokens estimates tokens in text; any non-empty text counts as at least one.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(1, len([]rune(text))/CharsPerToken)
}

// CharBudget converts a token budget into runes.
func CharBudget(tokens int) int {
	return max(0, tokens) * CharsPerToken
}

// TruncateToTokenLimit keeps at most limit tokens of text. When the cut lands
// inside a multi-line block it backs up to the last complete line, so table
// rows and chunk headers are never split.
func TruncateToTokenLimit(text string, limit int) string {
	runes := []rune(text)
	budget := CharBudget(limit)
	if budget >= len(runes) {
		return text
	}
	cut := string(runes[:budget])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		return cut[:i]
	}
	return cut
}
