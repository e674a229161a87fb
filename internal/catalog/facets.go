package catalog

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"supplier-catalog-service/internal/domain"
	"supplier-catalog-service/internal/extract"
)

// MaxFacetValues bounds the category and brand facet lists.
const MaxFacetValues = 50

// numericValue matches a number with an optional unit suffix: "16GB", "27\"",
// "165Hz", "8".
var numericValue = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*[A-Za-z"%/]*\s*$`)

// counter tallies labels under a key. The first label seen for a key is the
// one reported.
type counter struct {
	counts map[string]int
	labels map[string]string
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int), labels: make(map[string]string)}
}

func (c *counter) add(label string) {
	c.addKeyed(label, label)
}

// addFold counts label case-insensitively.
func (c *counter) addFold(label string) {
	c.addKeyed(strings.ToLower(label), label)
}

func (c *counter) addKeyed(key, label string) {
	if label == "" {
		return
	}
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
		c.labels[key] = label
	}
	c.counts[key]++
}

// ranked returns values by descending count, ties broken by label, cut to
// limit entries when limit > 0.
func (c *counter) ranked(limit int) []domain.FacetCount {
	out := make([]domain.FacetCount, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, domain.FacetCount{Value: c.labels[key], Count: c.counts[key]})
	}
	slices.SortFunc(out, func(a, b domain.FacetCount) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Value, b.Value)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// byValue returns values in numeric order when every value is numeric, else
// lexicographic order.
func (c *counter) byValue() []domain.FacetCount {
	out := make([]domain.FacetCount, 0, len(c.order))
	numeric := true
	nums := make(map[string]float64, len(c.order))
	for _, key := range c.order {
		label := c.labels[key]
		out = append(out, domain.FacetCount{Value: label, Count: c.counts[key]})
		m := numericValue.FindStringSubmatch(label)
		if m == nil {
			numeric = false
			continue
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			numeric = false
			continue
		}
		nums[label] = n
	}
	slices.SortFunc(out, func(a, b domain.FacetCount) int {
		if numeric {
			if r := cmp.Compare(nums[a.Value], nums[b.Value]); r != 0 {
				return r
			}
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return out
}

func countCategories(products []domain.Product) *counter {
	c := newCounter()
	for _, p := range products {
		seen := make(map[string]bool, len(p.Categories))
		for _, label := range p.Categories {
			label = strings.TrimSpace(label)
			if seen[label] {
				continue
			}
			seen[label] = true
			c.add(label)
		}
	}
	return c
}

func countBrands(products []domain.Product) *counter {
	c := newCounter()
	for _, p := range products {
		c.addFold(strings.TrimSpace(p.Brand))
	}
	return c
}

func countSuppliers(products []domain.Product) *counter {
	c := newCounter()
	for _, p := range products {
		c.add(string(p.Supplier))
	}
	return c
}

func priceRange(products []domain.Product) domain.PriceRange {
	if len(products) == 0 {
		return domain.PriceRange{}
	}
	r := domain.PriceRange{Min: products[0].Price, Max: products[0].Price}
	for _, p := range products[1:] {
		r.Min = min(r.Min, p.Price)
		r.Max = max(r.Max, p.Price)
	}
	return r
}

func attributeFacets(rules []extract.Rule, products []domain.Product) []domain.AttributeFacet {
	out := make([]domain.AttributeFacet, 0, len(rules))
	for _, rule := range rules {
		c := newCounter()
		for _, p := range products {
			if v, ok := rule.Extract(p); ok {
				c.add(v)
			}
		}
		if len(c.order) == 0 {
			continue
		}
		out = append(out, domain.AttributeFacet{Name: rule.Name, Key: rule.Key, Values: c.byValue()})
	}
	return out
}

// computeFacets builds the contextual facets of one listing. Category and
// brand counts each ignore their own constraint; the rest describe the fully
// filtered set.
func (a *Aggregator) computeFacets(all []domain.Product, f domain.ProductFilters, filtered []domain.Product) *domain.Facets {
	withoutCategory := newPredicate(f.WithoutCategory(), a.rules, f.Category).apply(all)
	withoutBrand := newPredicate(f.WithoutBrand(), a.rules, f.Category).apply(all)

	facets := &domain.Facets{
		Categories: countCategories(withoutCategory).ranked(MaxFacetValues),
		Brands:     countBrands(withoutBrand).ranked(MaxFacetValues),
		Suppliers:  countSuppliers(filtered).ranked(0),
		PriceRange: priceRange(filtered),
		Attributes: []domain.AttributeFacet{},
	}
	if strings.TrimSpace(f.Category) != "" {
		facets.Attributes = attributeFacets(a.rules.Rules(f.Category), filtered)
	}
	return facets
}
