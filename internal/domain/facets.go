package domain

// FacetCount is one selectable value of a facet with the number of matching
// products.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// PriceRange is the observed min/max price of a result set.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AttributeFacet is a category-specific facet derived from product text.
type AttributeFacet struct {
	Name   string       `json:"name"`
	Key    string       `json:"key"`
	Values []FacetCount `json:"values"`
}

// Facets is the query-dependent navigation projection of a listing.
type Facets struct {
	Categories []FacetCount     `json:"categories"`
	Brands     []FacetCount     `json:"brands"`
	Suppliers  []FacetCount     `json:"suppliers"`
	PriceRange PriceRange       `json:"priceRange"`
	Attributes []AttributeFacet `json:"attributes"`
}

// Pagination describes the page window of a listing.
type Pagination struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes the page window for total items.
func NewPagination(total, page, limit int) Pagination {
	totalPages := 0
	if total > 0 && limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// ListResult is the response of a catalog listing.
type ListResult struct {
	Items      []Product  `json:"items"`
	Pagination Pagination `json:"pagination"`
	Facets     *Facets    `json:"facets,omitempty"`
}
