package domain

// SortKey selects the ordering applied to a product listing.
type SortKey string

const (
	SortDefault   SortKey = "default" // images first, then in stock, then name
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
	SortNameAsc   SortKey = "name-asc"
	SortNameDesc  SortKey = "name-desc"
	SortNewest    SortKey = "newest"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// ProductFilters describes one catalog query. It is passed by value and never
// modified by the aggregator; derived variants are returned as copies.
type ProductFilters struct {
	Search   string
	Category string
	Brand    string
	MinPrice *float64
	MaxPrice *float64
	InStock  bool
	Supplier Supplier
	SortBy   SortKey
	Page     int
	Limit    int

	// Attributes holds category-specific facet constraints keyed by the
	// extractor rule key (e.g. "gpu_series" -> "RTX 40 Series").
	Attributes map[string]string
}

// Normalized returns a copy with defaults applied and page/limit clamped.
func (f ProductFilters) Normalized() ProductFilters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Supplier == "" {
		f.Supplier = SupplierAll
	}
	if f.SortBy == "" {
		f.SortBy = SortDefault
	}
	return f
}

// WithoutCategory returns a copy with the category constraint removed.
func (f ProductFilters) WithoutCategory() ProductFilters {
	f.Category = ""
	return f
}

// WithoutBrand returns a copy with the brand constraint removed.
func (f ProductFilters) WithoutBrand() ProductFilters {
	f.Brand = ""
	return f
}

// IncludesSupplier reports whether products of s are in scope for f.
func (f ProductFilters) IncludesSupplier(s Supplier) bool {
	return f.Supplier == "" || f.Supplier == SupplierAll || f.Supplier == s
}

// ValidSortKey reports whether raw names a supported ordering.
func ValidSortKey(raw string) bool {
	switch SortKey(raw) {
	case "", SortDefault, SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc, SortNewest:
		return true
	}
	return false
}
