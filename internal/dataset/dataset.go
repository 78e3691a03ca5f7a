// Package dataset holds the cleaned, column-oriented view of an uploaded table.
package dataset

import (
	"encoding/json"
	"math"
	"strings"
)

// Kind is the coarse type of a column after cleaning.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindText    Kind = "text"
	KindEmpty   Kind = "empty"
)

// Column is an immutable view of one table column.
type Column struct {
	Name   string
	Values []string
	// Numeric is set when cleaning coerced the column; NaN marks missing or unparsable cells.
	Numeric []float64
	Kind    Kind
}

// IsNumeric reports whether the column was coerced to numbers.
func (c Column) IsNumeric() bool { return c.Kind == KindNumeric && len(c.Numeric) == len(c.Values) }

// NonNull returns the values that are not blank or a null marker, in order.
func (c Column) NonNull() []string {
	out := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		if !IsNull(v) {
			out = append(out, v)
		}
	}
	return out
}

// Numbers returns the finite numeric values of a coerced column, in order.
func (c Column) Numbers() []float64 {
	if !c.IsNumeric() {
		return nil
	}
	out := make([]float64, 0, len(c.Numeric))
	for _, x := range c.Numeric {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// Value returns the typed cell value at row i: float64 for numeric columns,
// string for text, nil for null cells.
func (c Column) Value(i int) any {
	if i < 0 || i >= len(c.Values) {
		return nil
	}
	if c.IsNumeric() {
		if x := c.Numeric[i]; !math.IsNaN(x) && !math.IsInf(x, 0) {
			return x
		}
		return nil
	}
	if IsNull(c.Values[i]) {
		return nil
	}
	return c.Values[i]
}

// Dataset is a cleaned table.
type Dataset struct {
	Name    string
	Columns []Column
	Rows    int
}

// Column looks up a column by exact name.
func (d *Dataset) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames lists the column names in table order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Record returns row i as an ordered record.
func (d *Dataset) Record(i int) Record {
	rec := make(Record, len(d.Columns))
	for j, c := range d.Columns {
		rec[j] = Field{Name: c.Name, Value: c.Value(i)}
	}
	return rec
}

// Head returns up to n leading rows as records.
func (d *Dataset) Head(n int) []Record {
	if n > d.Rows {
		n = d.Rows
	}
	if n <= 0 {
		return nil
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i] = d.Record(i)
	}
	return out
}

// Field is one named cell of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is a row with column order preserved.
type Record []Field

// MarshalJSON writes the record as a flat object keeping column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

var nullMarkers = map[string]bool{
	"":     true,
	"nan":  true,
	"null": true,
	"none": true,
	"na":   true,
	"n/a":  true,
	"nat":  true,
}

// IsNull reports whether a raw cell should be treated as missing.
func IsNull(v string) bool {
	return nullMarkers[strings.ToLower(strings.TrimSpace(v))]
}
