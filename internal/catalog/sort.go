package catalog

import (
	"cmp"
	"slices"
	"strings"

	"supplier-catalog-service/internal/domain"
)

func compareNames(a, b domain.Product) int {
	return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

func boolFirst(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	}
	return 1
}

// sortProducts orders products in place. The sort is stable so equal keys
// keep fan-out order.
func sortProducts(products []domain.Product, key domain.SortKey) {
	var less func(a, b domain.Product) int
	switch key {
	case domain.SortPriceAsc:
		less = func(a, b domain.Product) int { return cmp.Compare(a.Price, b.Price) }
	case domain.SortPriceDesc:
		less = func(a, b domain.Product) int { return cmp.Compare(b.Price, a.Price) }
	case domain.SortNameAsc:
		less = compareNames
	case domain.SortNameDesc:
		less = func(a, b domain.Product) int { return compareNames(b, a) }
	case domain.SortNewest:
		less = func(a, b domain.Product) int {
			if r := b.CreatedAt.Compare(a.CreatedAt); r != 0 {
				return r
			}
			return b.LastModified.Compare(a.LastModified)
		}
	default:
		less = func(a, b domain.Product) int {
			if r := boolFirst(a.HasImage(), b.HasImage()); r != 0 {
				return r
			}
			if r := boolFirst(a.InStock, b.InStock); r != 0 {
				return r
			}
			return compareNames(a, b)
		}
	}
	slices.SortStableFunc(products, less)
}

// imagesFirst moves products with images ahead of those without, keeping the
// relative order within each group.
func imagesFirst(products []domain.Product) {
	slices.SortStableFunc(products, func(a, b domain.Product) int {
		return boolFirst(a.HasImage(), b.HasImage())
	})
}

func paginate(products []domain.Product, page, limit int) []domain.Product {
	start := (page - 1) * limit
	if start >= len(products) {
		return []domain.Product{}
	}
	end := min(start+limit, len(products))
	return products[start:end]
}
