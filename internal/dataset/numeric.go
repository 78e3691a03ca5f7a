package dataset

import (
	"math"
	"strconv"
	"strings"
)

// currencyCut strips currency symbols, percent signs and spacing from both ends.
const currencyCut = "$€£₺¥% "

// ParseNumber parses a retail cell as a number. It accepts both separator
// conventions ("1.234,56" and "1,234.56"), currency and percent decoration
// ("€ 30", "45%") and accounting negatives ("(12.50)"). A lone comma followed
// by exactly three digits is read as a thousands separator.
func ParseNumber(s string) (float64, bool) {
	v := strings.Trim(strings.ReplaceAll(s, "\u00a0", " "), currencyCut+"\t")
	neg := false
	if len(v) > 2 && v[0] == '(' && v[len(v)-1] == ')' {
		neg = true
		v = strings.Trim(v[1:len(v)-1], currencyCut)
	}
	if v == "" {
		return 0, false
	}

	comma, dot := strings.LastIndexByte(v, ','), strings.LastIndexByte(v, '.')
	decimal := byte('.')
	switch {
	case comma > dot && dot >= 0:
		decimal = ','
	case comma >= 0 && dot < 0 && len(v)-comma-1 != 3:
		decimal = ','
	}

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case c == decimal:
			b.WriteByte('.')
		case c == ',' || c == '.' || c == ' ' || c == '\'':
			// grouping separator
		default:
			b.WriteByte(c)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}
