package catalog

import (
	"strings"

	"supplier-catalog-service/internal/domain"
	"supplier-catalog-service/internal/extract"
)

type attrConstraint struct {
	key   string
	value string
	rule  extract.Rule
	known bool
}

// predicate is the compiled form of a ProductFilters value.
type predicate struct {
	search   string
	category string
	brand    string
	minPrice *float64
	maxPrice *float64
	inStock  bool
	attrs    []attrConstraint
}

// newPredicate compiles f. Attribute constraints are resolved against
// ruleCategory, which stays the declared category even when f itself has
// its category constraint dropped for facet counting.
func newPredicate(f domain.ProductFilters, rules *extract.Registry, ruleCategory string) predicate {
	p := predicate{
		search:   strings.ToLower(strings.TrimSpace(f.Search)),
		category: strings.ToLower(strings.TrimSpace(f.Category)),
		brand:    strings.TrimSpace(f.Brand),
		minPrice: f.MinPrice,
		maxPrice: f.MaxPrice,
		inStock:  f.InStock,
	}
	for key, value := range f.Attributes {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		c := attrConstraint{key: key, value: value}
		if rules != nil {
			c.rule, c.known = rules.Rule(ruleCategory, key)
		}
		p.attrs = append(p.attrs, c)
	}
	return p
}

func (p predicate) match(prod domain.Product) bool {
	if p.search != "" && !containsFold(p.search, prod.Name, prod.SKU, prod.Brand) {
		return false
	}
	if p.category != "" && !containsFold(p.category, prod.Categories...) {
		return false
	}
	if p.brand != "" && !strings.EqualFold(p.brand, prod.Brand) {
		return false
	}
	if p.minPrice != nil && prod.Price < *p.minPrice {
		return false
	}
	if p.maxPrice != nil && prod.Price > *p.maxPrice {
		return false
	}
	if p.inStock && !prod.InStock {
		return false
	}
	for _, c := range p.attrs {
		if !c.known {
			return false
		}
		v, ok := c.rule.Extract(prod)
		if !ok || !strings.EqualFold(v, c.value) {
			return false
		}
	}
	return true
}

func (p predicate) apply(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, prod := range products {
		if p.match(prod) {
			out = append(out, prod)
		}
	}
	return out
}

// containsFold reports whether any of values contains the lowercased needle.
func containsFold(needle string, values ...string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
