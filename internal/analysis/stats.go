package analysis

import (
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
)

// BasicStats describes the table as a whole.
type BasicStats struct {
	TotalRows          int              `json:"total_rows"`
	TotalColumns       int              `json:"total_columns"`
	MissingValues      int              `json:"missing_values"`
	DuplicateRows      int              `json:"duplicate_rows"`
	ColumnTypes        dataset.Record   `json:"column_types"`
	NumericColumns     []string         `json:"numeric_columns"`
	CategoricalColumns []string         `json:"categorical_columns"`
	DateColumns        []string         `json:"date_columns"`
	NumericSummary     []NumericSummary `json:"numeric_summary,omitempty"`
}

// NumericSummary mirrors a describe() row for one numeric column.
type NumericSummary struct {
	Column   string  `json:"column"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	P25      float64 `json:"25%"`
	Median   float64 `json:"50%"`
	P75      float64 `json:"75%"`
	Max      float64 `json:"max"`
	Outliers int     `json:"outliers,omitempty"`
}

func basicStats(ds *dataset.Dataset, roles *classifier.Result, opt Options) BasicStats {
	bs := BasicStats{
		TotalRows:          ds.Rows,
		TotalColumns:       len(ds.Columns),
		ColumnTypes:        make(dataset.Record, 0, len(ds.Columns)),
		NumericColumns:     []string{},
		CategoricalColumns: []string{},
		DateColumns:        append([]string{}, roles.Roles[classifier.RoleDate]...),
	}
	for _, c := range ds.Columns {
		for _, v := range c.Values {
			if dataset.IsNull(v) {
				bs.MissingValues++
			}
		}
		bs.ColumnTypes = append(bs.ColumnTypes, dataset.Field{Name: c.Name, Value: string(c.Kind)})
		if c.IsNumeric() {
			bs.NumericColumns = append(bs.NumericColumns, c.Name)
			if s, ok := summarize(c, opt.OutlierThreshold); ok {
				bs.NumericSummary = append(bs.NumericSummary, s)
			}
		} else {
			bs.CategoricalColumns = append(bs.CategoricalColumns, c.Name)
		}
	}
	bs.DuplicateRows = duplicateRows(ds)
	return bs
}

func summarize(c dataset.Column, outlierThreshold float64) (NumericSummary, bool) {
	vals := c.Numbers()
	if len(vals) == 0 {
		return NumericSummary{}, false
	}
	s := NumericSummary{Column: c.Name, Count: len(vals)}
	// Welford
	var mean, m2 float64
	for i, x := range vals {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	s.Mean = mean
	if len(vals) > 1 {
		s.Std = math.Sqrt(m2 / float64(len(vals)-1))
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s.Min, s.Max = sorted[0], sorted[len(sorted)-1]
	s.P25 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.P75 = quantile(sorted, 0.75)
	if outlierThreshold > 0 && len(vals) >= 8 {
		s.Outliers = countOutliers(vals, outlierThreshold)
	}
	return s, true
}

// countOutliers counts values whose robust Z-score (MAD based) exceeds thr.
func countOutliers(vals []float64, thr float64) int {
	median, mad := medianMAD(vals)
	if mad == 0 {
		return 0
	}
	n := 0
	for _, v := range vals {
		if math.Abs(0.6745*(v-median)/mad) > thr {
			n++
		}
	}
	return n
}

// duplicateRows counts rows identical to an earlier row.
func duplicateRows(ds *dataset.Dataset) int {
	seen := make(map[string]struct{}, ds.Rows)
	dups := 0
	parts := make([]string, len(ds.Columns))
	for i := 0; i < ds.Rows; i++ {
		for j, c := range ds.Columns {
			parts[j] = strings.TrimSpace(c.Values[i])
		}
		key := strings.Join(parts, "\x1f")
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
