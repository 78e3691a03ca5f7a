package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/retailmind-cli/internal/retrieval"
)

// Markdown renders a compact report suitable for the terminal or prompts.
func (r *Report) Markdown() string {
	var b strings.Builder
	bs := r.Basic
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", bs.TotalRows))
	b.WriteString(fmt.Sprintf("Columns: %d\n", bs.TotalColumns))
	b.WriteString(fmt.Sprintf("Missing values: %d, duplicate rows: %d\n\n", bs.MissingValues, bs.DuplicateRows))

	b.WriteString("[SCHEMA]\n")
	roleOf := map[string]string{}
	roles := make([]string, 0, len(r.Roles))
	for role := range r.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		for _, col := range r.Roles[role] {
			if _, ok := roleOf[col]; !ok {
				roleOf[col] = role
			}
		}
	}
	summaries := map[string]NumericSummary{}
	for _, s := range bs.NumericSummary {
		summaries[s.Column] = s
	}
	for _, f := range bs.ColumnTypes {
		b.WriteString(fmt.Sprintf("- %s: %v", safeName(f.Name), f.Value))
		if role, ok := roleOf[f.Name]; ok {
			b.WriteString(fmt.Sprintf(" [%s]", role))
		}
		if s, ok := summaries[f.Name]; ok {
			b.WriteString(fmt.Sprintf(" - min %.4g, max %.4g, mean %.4g, std %.4g", s.Min, s.Max, s.Mean, s.Std))
			if s.Outliers > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d", s.Outliers))
			}
		}
		b.WriteString("\n")
	}

	if s := r.Sales; s != nil {
		b.WriteString("\n[SALES]\n")
		b.WriteString(fmt.Sprintf("- %s: total %.2f, average %.2f, min %.2f, max %.2f over %d rows\n",
			s.Column, s.Stats.Total, s.Stats.Average, s.Stats.Min, s.Stats.Max, s.Stats.Count))
		if len(s.MonthlyTrend) > 0 {
			b.WriteString(fmt.Sprintf("- monthly trend by %s:\n", s.DateColumn))
			for _, m := range s.MonthlyTrend {
				b.WriteString(fmt.Sprintf("  • %s: %.2f\n", m.Month[:7], m.Value))
			}
		}
	}
	if p := r.Products; p != nil {
		b.WriteString(fmt.Sprintf("\n[TOP PRODUCTS] (%s)\n", p.Column))
		writeTotals(&b, p.TopProducts)
		if len(p.Categories) > 0 {
			b.WriteString(fmt.Sprintf("\n[CATEGORIES] (%s)\n", p.CategoryColumn))
			writeTotals(&b, p.Categories)
		}
	}
	if c := r.Customers; c != nil {
		b.WriteString(fmt.Sprintf("\n[TOP CUSTOMERS] (%s)\n", c.Column))
		for _, t := range c.TopCustomers {
			b.WriteString(fmt.Sprintf("- %s: %.2f over %d orders (avg %.2f)\n",
				safeVal(t.Customer), t.TotalSales, t.OrderCount, t.AvgOrderValue))
		}
		if rfm := c.RFM; rfm != nil && rfm.SegmentedCustomers >= 4 {
			b.WriteString(fmt.Sprintf("- segments as of %s: high value %d, at risk %d, new %d\n",
				rfm.ReferenceDate, rfm.HighValueCustomers, rfm.AtRiskCustomers, rfm.NewCustomers))
		}
	}

	if len(r.Preview) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, name := range r.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(name))
		}
		b.WriteString(" |\n| ")
		for i := range r.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Preview {
			b.WriteString("| ")
			for i, f := range row {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := cellText(f.Value)
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeTotals(b *strings.Builder, totals []GroupTotal) {
	for _, t := range totals {
		b.WriteString(fmt.Sprintf("- %s: %.2f (%d rows)\n", safeVal(t.Name), t.Sales, t.Count))
	}
}

func cellText(v any) string {
	switch x := retrieval.Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}
