// Package classifier assigns business roles to the columns of an unlabeled
// table from name and value heuristics plus an optional embedding vote.
package classifier

import "strings"

// Role is a canonical business meaning of a column.
type Role string

const (
	RoleSales    Role = "sales"
	RolePrice    Role = "price"
	RoleQuantity Role = "quantity"
	RoleCustomer Role = "customer"
	RoleProduct  Role = "product"
	RoleSKU      Role = "sku"
	RoleCategory Role = "category"
	RoleRegion   Role = "region"
	RoleDate     Role = "date"
	RoleOrderID  Role = "order_id"
	RoleChannel  Role = "channel"
	RoleStatus   Role = "status"
)

// CatalogVersion changes whenever descriptions or keywords change, since
// cached prototype embeddings depend on them.
const CatalogVersion = "2024.2"

// Prototype describes one role.
type Prototype struct {
	Role        Role     `json:"role"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	// Weak keywords never count as an exact match on their own; "code" names
	// an identifier of almost anything.
	Weak []string `json:"weak_keywords,omitempty"`
	// Pair matches when the name has a token from each list ("order" + "id").
	Pair [2][]string `json:"-"`
}

// Catalog is the fixed, ordered set of roles. Order breaks name-score ties.
type Catalog struct {
	Version    string      `json:"version"`
	Prototypes []Prototype `json:"prototypes"`
}

// DefaultCatalog returns the built-in retail catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version: CatalogVersion,
		Prototypes: []Prototype{
			{
				Role:        RoleSales,
				Description: "Monetary sales value of a transaction: revenue, amount, turnover or line total.",
				Keywords:    []string{"sales", "revenue", "amount", "subtotal", "total", "turnover", "ciro", "tutar"},
			},
			{
				Role:        RolePrice,
				Description: "Unit price or cost of a single product.",
				Keywords:    []string{"price", "cost", "fee", "rate", "msrp", "discount", "fiyat"},
			},
			{
				Role:        RoleQuantity,
				Description: "Number of units sold or ordered, a small whole number count.",
				Keywords:    []string{"quantity", "qty", "count", "units", "pcs", "adet", "miktar"},
			},
			{
				Role:        RoleCustomer,
				Description: "Customer or client who placed the order, a person or company name or id.",
				Keywords:    []string{"customer", "client", "buyer", "user", "musteri", "müşteri"},
			},
			{
				Role:        RoleProduct,
				Description: "Product or item name that was sold.",
				Keywords:    []string{"product", "item", "article", "urun", "ürün"},
			},
			{
				Role:        RoleSKU,
				Description: "Stock keeping unit, barcode or product code made of letters and digits.",
				Keywords:    []string{"sku", "barcode", "ean", "upc"},
				Weak:        []string{"code"},
			},
			{
				Role:        RoleCategory,
				Description: "Product category, group, segment or type.",
				Keywords:    []string{"category", "group", "segment", "type", "kategori"},
			},
			{
				Role:        RoleRegion,
				Description: "Geographic region, country, state, city or store location.",
				Keywords:    []string{"region", "country", "state", "city", "location", "area", "zipcode", "postcode", "postalcode", "bolge", "bölge", "sehir", "şehir"},
				Pair:        [2][]string{{"country", "zip", "postal", "post", "region", "state", "city", "store", "shop", "branch"}, {"code"}},
			},
			{
				Role:        RoleDate,
				Description: "Date or timestamp of the order or transaction.",
				Keywords:    []string{"date", "time", "timestamp", "day", "month", "created", "tarih"},
			},
			{
				Role:        RoleOrderID,
				Description: "Identifier of an order, invoice, receipt or transaction.",
				Keywords:    []string{"orderid", "ordernumber", "orderno", "invoiceid", "invoiceno", "transactionid", "receiptid"},
				Pair:        [2][]string{{"order", "transaction", "invoice", "receipt", "siparis", "sipariş"}, {"id", "no", "number", "nr", "num"}},
			},
			{
				Role:        RoleChannel,
				Description: "Sales channel or source such as online, store, marketplace or platform.",
				Keywords:    []string{"channel", "source", "platform", "kanal"},
			},
			{
				Role:        RoleStatus,
				Description: "Order or payment status such as completed, cancelled or returned.",
				Keywords:    []string{"status", "state", "durum"},
			},
		},
	}
}

// Roles lists the catalog roles in order.
func (c *Catalog) Roles() []Role {
	out := make([]Role, len(c.Prototypes))
	for i, p := range c.Prototypes {
		out[i] = p.Role
	}
	return out
}

// Prototype looks up one role.
func (c *Catalog) Prototype(r Role) (Prototype, bool) {
	for _, p := range c.Prototypes {
		if p.Role == r {
			return p, true
		}
	}
	return Prototype{}, false
}

var synonyms = map[string]Role{
	"revenue":  RoleSales,
	"amount":   RoleSales,
	"turnover": RoleSales,
	"subtotal": RoleSales,
	"qty":      RoleQuantity,
	"units":    RoleQuantity,
	"client":   RoleCustomer,
	"buyer":    RoleCustomer,
	"item":     RoleProduct,
	"article":  RoleProduct,
}

// Normalize maps a synonym onto its canonical role; other values are
// lower-cased and returned as is.
func Normalize(r Role) Role {
	key := strings.ToLower(strings.TrimSpace(string(r)))
	if canon, ok := synonyms[key]; ok {
		return canon
	}
	return Role(key)
}

// ParseRole normalizes s and reports whether it names a catalog role.
func (c *Catalog) ParseRole(s string) (Role, bool) {
	r := Normalize(Role(s))
	_, ok := c.Prototype(r)
	return r, ok
}
