package dataset

import (
	"fmt"
	"math"
	"strings"
)

// numericShare is the share of rows that must parse as numbers before a
// column is coerced.
const numericShare = 0.5

// Clean builds a Dataset from a header and raw rows: blank rows and columns are
// dropped, cells are trimmed, and mostly-numeric columns are coerced.
func Clean(name string, header []string, rows [][]string) *Dataset {
	ncol := len(header)
	for _, r := range rows {
		if len(r) > ncol {
			ncol = len(r)
		}
	}
	// Drop rows where every cell is blank.
	kept := make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, ncol)
		blank := true
		for j := 0; j < ncol && j < len(r); j++ {
			row[j] = strings.TrimSpace(r[j])
			if row[j] != "" {
				blank = false
			}
		}
		if !blank {
			kept = append(kept, row)
		}
	}

	ds := &Dataset{Name: name, Rows: len(kept)}
	seen := map[string]int{}
	for j := 0; j < ncol; j++ {
		values := make([]string, len(kept))
		nonEmpty := 0
		for i, row := range kept {
			values[i] = row[j]
			if row[j] != "" {
				nonEmpty++
			}
		}
		if nonEmpty == 0 {
			continue
		}
		colName := ""
		if j < len(header) {
			colName = strings.TrimSpace(header[j])
		}
		if colName == "" {
			colName = fmt.Sprintf("column_%d", j+1)
		}
		// pandas-style suffix for duplicate headers
		if n := seen[colName]; n > 0 {
			seen[colName]++
			colName = fmt.Sprintf("%s.%d", colName, n)
		} else {
			seen[colName] = 1
		}
		ds.Columns = append(ds.Columns, coerce(colName, values))
	}
	return ds
}

func coerce(name string, values []string) Column {
	col := Column{Name: name, Values: values, Kind: KindText}
	nums := make([]float64, len(values))
	parsed, nonNull := 0, 0
	for i, v := range values {
		if IsNull(v) {
			nums[i] = math.NaN()
			continue
		}
		nonNull++
		if x, ok := ParseNumber(v); ok {
			nums[i] = x
			parsed++
		} else {
			nums[i] = math.NaN()
		}
	}
	switch {
	case nonNull == 0:
		col.Kind = KindEmpty
	case float64(parsed) > float64(len(values))*numericShare:
		col.Kind = KindNumeric
		col.Numeric = nums
	}
	return col
}
