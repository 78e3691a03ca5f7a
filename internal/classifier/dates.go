package classifier

import (
	"strings"
	"time"

	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
)

// dateShare is the fraction of non-null values that must parse before a
// column counts as a date column.
const dateShare = 0.8

// Layout groups are tried in order. The year/day/month layout comes first,
// so "2024/01/05" reads as 1 May; ambiguous slash dates are not corrected.
var (
	yearDayMonth   = []string{"2006/02/01"}
	defaultLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/01/02",
		"01/02/2006",
		"1/2/2006",
		"01/02/06",
		"1/2/06",
		"01-02-06",
		"01/02/2006 15:04",
		"Jan 2 2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 Jan 2006",
		"02-Jan-2006",
		"2006-01",
	}
	dayFirstLayouts = []string{
		"02/01/2006",
		"2/1/2006",
		"02.01.2006",
		"2.1.2006",
		"02-01-2006",
		"02.01.2006 15:04",
	}
)

// ParseDate parses s with the fallback chain: year/day/month, then the
// default layouts, then day-first layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if _, isNum := dataset.ParseNumber(s); isNum {
		return time.Time{}, false
	}
	for _, group := range [][]string{yearDayMonth, defaultLayouts, dayFirstLayouts} {
		for _, layout := range group {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// DetectDate reports whether at least 80% of a text column's non-null values
// parse as dates. Numeric columns are never dates.
func DetectDate(col dataset.Column) bool {
	if col.IsNumeric() {
		return false
	}
	vals := col.NonNull()
	if len(vals) > sampleLimit {
		vals = vals[:sampleLimit]
	}
	if len(vals) == 0 {
		return false
	}
	ok := 0
	for _, v := range vals {
		if _, parsed := ParseDate(v); parsed {
			ok++
		}
	}
	return float64(ok)/float64(len(vals)) >= dateShare
}
