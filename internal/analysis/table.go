// Package analysis computes the retail summary of a cleaned dataset, driven by
// the column roles the classifier assigned.
package analysis

import (
	"strings"

	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/retrieval"
)

// Options controls analysis behavior for tabular data.
type Options struct {
	// PreviewRows is the number of leading rows kept as records.
	PreviewRows int
	// TopN bounds the product and customer rankings.
	TopN int
	// OutlierThreshold is the robust |z| above which a numeric value counts as
	// an outlier; 0 disables outlier counting.
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset analysis.
func DefaultOptions() Options {
	return Options{PreviewRows: 10, TopN: 10, OutlierThreshold: 3.5}
}

// Report is the analysis of one dataset. Optional sections are nil when the
// roles they need were not found.
type Report struct {
	Name      string              `json:"-"`
	Basic     BasicStats          `json:"basic_stats"`
	Sales     *SalesAnalysis      `json:"sales_analysis,omitempty"`
	Products  *ProductAnalysis    `json:"product_analysis,omitempty"`
	Customers *CustomerAnalysis   `json:"customer_analysis,omitempty"`
	Roles     map[string][]string `json:"column_roles"`
	Columns   []string            `json:"columns"`
	Preview   []dataset.Record    `json:"data_preview"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// Analyze builds the report. roles may be nil, in which case only the
// basic statistics and preview are produced.
func Analyze(ds *dataset.Dataset, roles *classifier.Result, opt Options) *Report {
	def := DefaultOptions()
	if opt.PreviewRows <= 0 {
		opt.PreviewRows = def.PreviewRows
	}
	if opt.TopN <= 0 {
		opt.TopN = def.TopN
	}
	rep := &Report{
		Name:    ds.Name,
		Roles:   map[string][]string{},
		Columns: ds.ColumnNames(),
		Preview: ds.Head(opt.PreviewRows),
	}
	if roles == nil {
		roles = &classifier.Result{Roles: map[classifier.Role][]string{}}
	}
	for r, cols := range roles.Roles {
		rep.Roles[string(r)] = append([]string(nil), cols...)
	}
	rep.Basic = basicStats(ds, roles, opt)

	a := &roleView{ds: ds, roles: roles}
	sales, ok := a.numeric(classifier.RoleSales)
	if !ok {
		if name, has := roles.First(classifier.RoleSales); has {
			rep.Warnings = append(rep.Warnings, "sales column '"+name+"' is not numeric; sales sections skipped")
		}
		return rep
	}
	date, hasDate := a.column(classifier.RoleDate)
	rep.Sales = salesAnalysis(sales, date, hasDate)
	if product, ok := a.column(classifier.RoleProduct); ok {
		category, _ := a.column(classifier.RoleCategory)
		rep.Products = productAnalysis(product, category, sales, opt.TopN)
	}
	if customer, ok := a.column(classifier.RoleCustomer); ok {
		order, _ := a.column(classifier.RoleOrderID)
		rep.Customers = customerAnalysis(customer, order, date, sales, opt.TopN)
	}
	return rep
}

// Sections lists the report in its fixed order for chunking. Absent optional
// sections are left out.
func (r *Report) Sections() []retrieval.Section {
	out := []retrieval.Section{{Key: "basic_stats", Value: r.Basic}}
	if r.Sales != nil {
		out = append(out, retrieval.Section{Key: "sales_analysis", Value: r.Sales})
	}
	if r.Products != nil {
		out = append(out, retrieval.Section{Key: "product_analysis", Value: r.Products})
	}
	if r.Customers != nil {
		out = append(out, retrieval.Section{Key: "customer_analysis", Value: r.Customers})
	}
	out = append(out,
		retrieval.Section{Key: "column_roles", Value: r.Roles},
		retrieval.Section{Key: "columns", Value: r.Columns},
	)
	return out
}

// roleView resolves roles to dataset columns.
type roleView struct {
	ds    *dataset.Dataset
	roles *classifier.Result
}

// column returns the first column assigned role itself, falling back to the
// first bucket entry (an SKU column standing in for product).
func (v *roleView) column(role classifier.Role) (dataset.Column, bool) {
	name, ok := v.roles.First(role)
	if !ok {
		return dataset.Column{}, false
	}
	for _, n := range v.roles.Roles[role] {
		if v.roles.RoleOf(n) == role {
			name = n
			break
		}
	}
	return v.ds.Column(name)
}

// numeric returns the first column with role that was coerced to numbers.
func (v *roleView) numeric(role classifier.Role) (dataset.Column, bool) {
	for _, name := range v.roles.Roles[role] {
		if c, ok := v.ds.Column(name); ok && c.IsNumeric() {
			return c, true
		}
	}
	return dataset.Column{}, false
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
