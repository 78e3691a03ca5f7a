package analysis

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
)

// SalesAnalysis summarizes the sales column and, when a date column exists,
// its monthly trend.
type SalesAnalysis struct {
	Column       string       `json:"sales_column"`
	DateColumn   string       `json:"date_column,omitempty"`
	Stats        SalesStats   `json:"sales_stats"`
	MonthlyTrend []MonthTotal `json:"monthly_trend,omitempty"`
}

type SalesStats struct {
	Total   float64 `json:"total_sales"`
	Average float64 `json:"average_sales"`
	Max     float64 `json:"max_sales"`
	Min     float64 `json:"min_sales"`
	Count   int     `json:"sales_count"`
}

// MonthTotal is the sales sum of one calendar month; Month is its first day
// as YYYY-MM-DD.
type MonthTotal struct {
	Month string  `json:"month"`
	Value float64 `json:"value"`
}

// ProductAnalysis ranks products by sales and breaks sales down by category.
type ProductAnalysis struct {
	Column         string       `json:"product_column"`
	TopProducts    []GroupTotal `json:"top_products"`
	CategoryColumn string       `json:"category_column,omitempty"`
	Categories     []GroupTotal `json:"category_analysis,omitempty"`
}

// GroupTotal is the sales sum and row count of one distinct value.
type GroupTotal struct {
	Name  string  `json:"name"`
	Sales float64 `json:"sales"`
	Count int     `json:"count"`
}

// CustomerAnalysis ranks customers and, when dates exist, segments them by
// recency, frequency and monetary value.
type CustomerAnalysis struct {
	Column       string          `json:"customer_column"`
	TopCustomers []CustomerTotal `json:"top_customers"`
	RFM          *RFMSummary     `json:"rfm_analysis,omitempty"`
}

type CustomerTotal struct {
	Customer      string  `json:"customer"`
	TotalSales    float64 `json:"total_sales"`
	OrderCount    int     `json:"order_count"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// RFMSummary counts customers per segment. Recency is measured against the
// latest date in the dataset.
type RFMSummary struct {
	ReferenceDate      string `json:"reference_date"`
	HighValueCustomers int    `json:"high_value_customers"`
	AtRiskCustomers    int    `json:"at_risk_customers"`
	NewCustomers       int    `json:"new_customers"`
	SegmentedCustomers int    `json:"segmented_customers"`
}

func salesAnalysis(sales, date dataset.Column, hasDate bool) *SalesAnalysis {
	out := &SalesAnalysis{Column: sales.Name}
	vals := sales.Numbers()
	if len(vals) > 0 {
		st := SalesStats{Count: len(vals), Min: math.Inf(1), Max: math.Inf(-1)}
		for _, x := range vals {
			st.Total += x
			st.Min = math.Min(st.Min, x)
			st.Max = math.Max(st.Max, x)
		}
		st.Average = st.Total / float64(len(vals))
		out.Stats = st
	}
	if !hasDate {
		return out
	}
	out.DateColumn = date.Name
	months := map[string]float64{}
	for i, raw := range date.Values {
		x := sales.Value(i)
		if x == nil {
			continue
		}
		d, ok := classifier.ParseDate(raw)
		if !ok {
			continue
		}
		key := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		months[key] += x.(float64)
	}
	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.MonthlyTrend = append(out.MonthlyTrend, MonthTotal{Month: k, Value: months[k]})
	}
	return out
}

func productAnalysis(product, category, sales dataset.Column, topN int) *ProductAnalysis {
	out := &ProductAnalysis{Column: product.Name, TopProducts: groupTotals(product, sales)}
	if len(out.TopProducts) > topN {
		out.TopProducts = out.TopProducts[:topN]
	}
	if category.Name != "" {
		out.CategoryColumn = category.Name
		out.Categories = groupTotals(category, sales)
	}
	return out
}

// groupTotals sums sales per distinct key, best first; ties by name.
func groupTotals(keys, sales dataset.Column) []GroupTotal {
	idx := map[string]int{}
	var out []GroupTotal
	for i, raw := range keys.Values {
		if dataset.IsNull(raw) {
			continue
		}
		x := sales.Value(i)
		if x == nil {
			continue
		}
		k := strings.TrimSpace(raw)
		j, ok := idx[k]
		if !ok {
			j = len(out)
			idx[k] = j
			out = append(out, GroupTotal{Name: k})
		}
		out[j].Sales += x.(float64)
		out[j].Count++
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sales == out[j].Sales {
			return out[i].Name < out[j].Name
		}
		return out[i].Sales > out[j].Sales
	})
	return out
}

type customerAcc struct {
	total  float64
	rows   int
	orders map[string]struct{}
	last   time.Time
}

func (c *customerAcc) orderCount() int {
	if len(c.orders) > 0 {
		return len(c.orders)
	}
	return c.rows
}

// customerAnalysis counts orders by distinct order id when an order_id column
// exists, otherwise by rows.
func customerAnalysis(customer, order, date, sales dataset.Column, topN int) *CustomerAnalysis {
	accs := map[string]*customerAcc{}
	var names []string
	var latest time.Time
	for i, raw := range customer.Values {
		if dataset.IsNull(raw) {
			continue
		}
		x := sales.Value(i)
		if x == nil {
			continue
		}
		k := strings.TrimSpace(raw)
		acc, ok := accs[k]
		if !ok {
			acc = &customerAcc{orders: map[string]struct{}{}}
			accs[k] = acc
			names = append(names, k)
		}
		acc.total += x.(float64)
		acc.rows++
		if i < len(order.Values) && !dataset.IsNull(order.Values[i]) {
			acc.orders[strings.TrimSpace(order.Values[i])] = struct{}{}
		}
		if i < len(date.Values) {
			if d, ok := classifier.ParseDate(date.Values[i]); ok {
				if d.After(acc.last) {
					acc.last = d
				}
				if d.After(latest) {
					latest = d
				}
			}
		}
	}

	out := &CustomerAnalysis{Column: customer.Name, TopCustomers: []CustomerTotal{}}
	for _, k := range names {
		acc := accs[k]
		n := acc.orderCount()
		out.TopCustomers = append(out.TopCustomers, CustomerTotal{
			Customer:      k,
			TotalSales:    acc.total,
			OrderCount:    n,
			AvgOrderValue: acc.total / float64(n),
		})
	}
	sort.SliceStable(out.TopCustomers, func(i, j int) bool {
		a, b := out.TopCustomers[i], out.TopCustomers[j]
		if a.TotalSales == b.TotalSales {
			return a.Customer < b.Customer
		}
		return a.TotalSales > b.TotalSales
	})
	if len(out.TopCustomers) > topN {
		out.TopCustomers = out.TopCustomers[:topN]
	}
	if !latest.IsZero() {
		out.RFM = rfm(names, accs, latest)
	}
	return out
}

// rfm scores each dated customer 1..4 per dimension by quartile and counts
// the classic segments.
func rfm(names []string, accs map[string]*customerAcc, ref time.Time) *RFMSummary {
	var rec, freq, mon []float64
	var dated []string
	for _, k := range names {
		acc := accs[k]
		if acc.last.IsZero() {
			continue
		}
		dated = append(dated, k)
		rec = append(rec, ref.Sub(acc.last).Hours()/24)
		freq = append(freq, float64(acc.orderCount()))
		mon = append(mon, acc.total)
	}
	out := &RFMSummary{ReferenceDate: ref.Format("2006-01-02"), SegmentedCustomers: len(dated)}
	if len(dated) < 4 {
		return out
	}
	rq, fq, mq := quartiles(rec), quartiles(freq), quartiles(mon)
	for i := range dated {
		r := 5 - quartileScore(rec[i], rq)
		f := quartileScore(freq[i], fq)
		m := quartileScore(mon[i], mq)
		switch {
		case r >= 3 && f >= 3 && m >= 3:
			out.HighValueCustomers++
		case r <= 2 && f >= 3 && m >= 3:
			out.AtRiskCustomers++
		case r >= 3 && f <= 2 && m <= 2:
			out.NewCustomers++
		}
	}
	return out
}

func quartiles(vals []float64) [3]float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return [3]float64{quantile(sorted, 0.25), quantile(sorted, 0.5), quantile(sorted, 0.75)}
}

// quartileScore maps v to 1..4, 4 being the top quartile.
func quartileScore(v float64, q [3]float64) int {
	switch {
	case v <= q[0]:
		return 1
	case v <= q[1]:
		return 2
	case v <= q[2]:
		return 3
	}
	return 4
}
