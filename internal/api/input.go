package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"supplier-catalog-service/internal/domain"
)

const (
	defaultSearchLimit = 10
	maxHistoryPage     = 100
)

// ListProductsInput holds the query parameters of a product listing.
type ListProductsInput struct {
	Search     string   `validate:"max=200"`
	Category   string   `validate:"max=200"`
	Brand      string   `validate:"max=200"`
	MinPrice   *float64 `validate:"omitempty,gte=0"`
	MaxPrice   *float64 `validate:"omitempty,gte=0"`
	InStock    bool
	Supplier   string `validate:"omitempty,oneof=all acme dynamo crest"`
	SortBy     string `validate:"omitempty,oneof=default price-asc price-desc name-asc name-desc newest"`
	Page       int
	Limit      int
	Attributes map[string]string
}

// SearchInput holds the parameters of a quick search.
type SearchInput struct {
	Query string `validate:"required,min=2,max=200"`
	Limit int    `validate:"omitempty,min=1,max=50"`
}

// HistoryInput holds the parameters of a refresh history listing.
type HistoryInput struct {
	Trigger string `validate:"omitempty,oneof=startup schedule manual"`
	Failed  bool
	Page    int
	Limit   int
}

var errPriceRange = errors.New("min_price cannot exceed max_price")

// validateListInput runs the struct rules plus the cross-field price check.
func validateListInput(v *validator.Validate, in ListProductsInput) error {
	if err := v.Struct(in); err != nil {
		return err
	}
	if in.MinPrice != nil && in.MaxPrice != nil && *in.MinPrice > *in.MaxPrice {
		return errPriceRange
	}
	return nil
}

// Filters converts the input into the catalog query. Defaults and clamping
// are left to domain.ProductFilters.Normalized.
func (in ListProductsInput) Filters() domain.ProductFilters {
	f := domain.ProductFilters{
		Search:     strings.TrimSpace(in.Search),
		Category:   strings.TrimSpace(in.Category),
		Brand:      strings.TrimSpace(in.Brand),
		MinPrice:   in.MinPrice,
		MaxPrice:   in.MaxPrice,
		InStock:    in.InStock,
		SortBy:     domain.SortKey(in.SortBy),
		Page:       in.Page,
		Limit:      in.Limit,
		Attributes: in.Attributes,
	}
	if s, ok := domain.ParseSupplier(in.Supplier); ok {
		f.Supplier = s
	}
	return f
}

// parseListProductsQuery reads the listing parameters. attributeKeys resolves
// the dynamic facet keys registered for the requested category; only those
// are read from the query.
func parseListProductsQuery(q url.Values, attributeKeys func(string) []string) (ListProductsInput, error) {
	in := ListProductsInput{
		Search:   q.Get("q"),
		Category: q.Get("category"),
		Brand:    q.Get("brand"),
		Supplier: strings.ToLower(q.Get("supplier")),
		SortBy:   strings.ToLower(q.Get("sort_by")),
		Page:     intParam(q, "page", domain.DefaultPage),
		Limit:    intParam(q, "limit", domain.DefaultLimit),
	}
	if in.Limit > domain.MaxLimit {
		in.Limit = domain.MaxLimit
	}

	var err error
	if in.MinPrice, err = floatParam(q, "min_price"); err != nil {
		return in, err
	}
	if in.MaxPrice, err = floatParam(q, "max_price"); err != nil {
		return in, err
	}
	if raw := q.Get("in_stock"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return in, fmt.Errorf("invalid in_stock value: must be true or false")
		}
		in.InStock = b
	}

	if in.Category != "" && attributeKeys != nil {
		for _, key := range attributeKeys(in.Category) {
			if v := strings.TrimSpace(q.Get(key)); v != "" {
				if in.Attributes == nil {
					in.Attributes = make(map[string]string)
				}
				in.Attributes[key] = v
			}
		}
	}
	return in, nil
}

// intParam returns def when the parameter is missing, malformed or not
// positive.
func intParam(q url.Values, name string, def int) int {
	v, err := strconv.Atoi(q.Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatParam(q url.Values, name string) (*float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format", name)
	}
	return &v, nil
}
