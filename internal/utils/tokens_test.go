package utils_test

import (
	"strings"
	"testing"

	"github.com/KaramelBytes/retailmind-cli/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := map[string]int{
		"":                       0,
		"hi":                     1,
		"Lamp,2024-01-03,19.99":  5,
		strings.Repeat("é", 400): 100,
	}
	for in, want := range cases {
		if got := utils.CountTokens(in); got != want {
			t.Errorf("CountTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestCharBudget(t *testing.T) {
	if got := utils.CharBudget(500); got != 2000 {
		t.Fatalf("CharBudget(500) = %d, want 2000", got)
	}
	if got := utils.CharBudget(-1); got != 0 {
		t.Fatalf("CharBudget(-1) = %d, want 0", got)
	}
}

func TestTruncateKeepsWholeLines(t *testing.T) {
	text := "Product,Qty\nLamp,2\nDesk,1\nChair,4\n"
	got := utils.TruncateToTokenLimit(text, 5) // 20 runes
	if got != "Product,Qty\nLamp,2" {
		t.Fatalf("TruncateToTokenLimit = %q", got)
	}
	if utils.TruncateToTokenLimit(text, 100) != text {
		t.Fatalf("text within budget should be unchanged")
	}
	if utils.TruncateToTokenLimit(text, 0) != "" {
		t.Fatalf("zero budget should yield empty text")
	}
}

func TestTruncateSingleLine(t *testing.T) {
	text := strings.Repeat("abcd", 1000)
	got := utils.TruncateToTokenLimit(text, 300)
	if len(got) != 1200 || utils.CountTokens(got) > 300 {
		t.Fatalf("unexpected truncation length %d", len(got))
	}
}
