package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscount(t *testing.T) {
	cases := []struct {
		name       string
		price, rrp float64
		want       int
	}{
		{"markdown", 100, 150, 33},
		{"equal", 50, 50, 0},
		{"rrp below price", 120, 100, 0},
		{"no rrp", 99, 0, 0},
		{"free item", 0, 80, 100},
		{"rounds half up", 87.5, 100, 13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Discount(tc.price, tc.rrp))
		})
	}
}

func TestDiscount_AlwaysInRange(t *testing.T) {
	for price := 0.0; price <= 300; price += 7.5 {
		for rrp := 0.0; rrp <= 300; rrp += 11 {
			d := Discount(price, rrp)
			require.GreaterOrEqual(t, d, 0)
			require.LessOrEqual(t, d, 100)
			if rrp <= price {
				require.Zero(t, d, "price=%v rrp=%v", price, rrp)
			}
		}
	}
}

func TestNewStock_TotalIsSumOfLocations(t *testing.T) {
	s := NewStock(map[string]int{"AKL": 4, "WLG": 0, "CHC": 11, "BAD": -3})

	assert.Equal(t, 15, s.Total)
	assert.Equal(t, 0, s.Locations["BAD"])
	sum := 0
	for _, q := range s.Locations {
		sum += q
	}
	assert.Equal(t, s.Total, sum)
}

func TestProduct_Finalize(t *testing.T) {
	p := Product{
		SKU:      "GPU-1",
		Supplier: SupplierAcme,
		Price:    100,
		RRP:      150,
		Stock:    NewStock(map[string]int{"AKL": 2}),
		Images:   []string{"https://img/1.jpg", "https://img/2.jpg"},
	}.Finalize()

	assert.Equal(t, "acme-GPU-1", p.ID)
	assert.Equal(t, 33, p.Discount)
	assert.True(t, p.InStock)
	assert.Equal(t, UnknownBrand, p.Brand)
	assert.Equal(t, "https://img/1.jpg", p.FeaturedImage)
	assert.NotNil(t, p.Attributes)
	assert.NotNil(t, p.Categories)

	empty := Product{SKU: "X", Supplier: SupplierCrest, Price: -5}.Finalize()
	assert.Equal(t, 0.0, empty.Price)
	assert.False(t, empty.InStock)
	assert.Equal(t, "", empty.FeaturedImage)
	assert.Equal(t, []string{}, empty.Images)
}

func TestParseSupplier(t *testing.T) {
	s, ok := ParseSupplier("")
	assert.True(t, ok)
	assert.Equal(t, SupplierAll, s)

	s, ok = ParseSupplier(" Dynamo ")
	assert.True(t, ok)
	assert.Equal(t, SupplierDynamo, s)

	_, ok = ParseSupplier("nope")
	assert.False(t, ok)
}

func TestProductFilters_Normalized(t *testing.T) {
	f := ProductFilters{Page: -2, Limit: 500}.Normalized()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, SupplierAll, f.Supplier)
	assert.Equal(t, SortDefault, f.SortBy)

	f = ProductFilters{}.Normalized()
	assert.Equal(t, DefaultLimit, f.Limit)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(45, 2, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPagination(45, 3, 20)
	assert.False(t, p.HasNext)

	p = NewPagination(0, 1, 20)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)
}
