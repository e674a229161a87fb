package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplier-catalog-service/internal/cache"
	"supplier-catalog-service/internal/domain"
	"supplier-catalog-service/internal/extract"
)

type fakeSource struct {
	supplier    domain.Supplier
	products    []domain.Product
	gets        atomic.Int32
	invalidated atomic.Int32
}

func (s *fakeSource) Supplier() domain.Supplier { return s.supplier }

func (s *fakeSource) Get(context.Context) []domain.Product {
	s.gets.Add(1)
	return s.products
}

func (s *fakeSource) Invalidate() { s.invalidated.Add(1) }

func (s *fakeSource) Status() cache.Status {
	return cache.Status{Name: "products:" + string(s.supplier), Loaded: true}
}

type productOpt func(*domain.Product)

func withImage(url string) productOpt {
	return func(p *domain.Product) { p.Images = []string{url} }
}

func withStock(qty int) productOpt {
	return func(p *domain.Product) { p.Stock = domain.NewStock(map[string]int{"MAIN": qty}) }
}

func withCategories(labels ...string) productOpt {
	return func(p *domain.Product) { p.Categories = labels }
}

func withBrand(brand string) productOpt {
	return func(p *domain.Product) { p.Brand = brand }
}

func withCreated(t time.Time) productOpt {
	return func(p *domain.Product) { p.CreatedAt = t }
}

func product(s domain.Supplier, sku, name string, price, rrp float64, opts ...productOpt) domain.Product {
	p := domain.Product{SKU: sku, Name: name, Price: price, RRP: rrp, Supplier: s}
	for _, o := range opts {
		o(&p)
	}
	return p.Finalize()
}

func source(s domain.Supplier, products ...domain.Product) *fakeSource {
	return &fakeSource{supplier: s, products: products}
}

func newTestAggregator(sources ...Source) *Aggregator {
	return NewAggregator(sources, extract.Default(), nil)
}

func skus(products []domain.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.SKU
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func TestListProducts_TwoSupplierScenario(t *testing.T) {
	agg := newTestAggregator(
		source(domain.SupplierAcme, product(domain.SupplierAcme, "A1", "Alpha", 100, 150)),
		source(domain.SupplierCrest, product(domain.SupplierCrest, "B1", "Beta", 50, 50)),
	)

	res := agg.ListProducts(context.Background(), domain.ProductFilters{})

	require.Len(t, res.Items, 2)
	bySKU := map[string]domain.Product{}
	for _, p := range res.Items {
		bySKU[p.SKU] = p
	}
	assert.Equal(t, 33, bySKU["A1"].Discount)
	assert.Equal(t, 0, bySKU["B1"].Discount)
	require.NotNil(t, res.Facets)
	assert.Equal(t, domain.PriceRange{Min: 50, Max: 100}, res.Facets.PriceRange)
	assert.Equal(t, domain.Pagination{Total: 2, Page: 1, Limit: 20, TotalPages: 1}, res.Pagination)
}

func TestListProducts_EmptyCatalog(t *testing.T) {
	agg := newTestAggregator(source(domain.SupplierAcme), source(domain.SupplierDynamo))

	res := agg.ListProducts(context.Background(), domain.ProductFilters{Category: "Monitors"})

	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.Equal(t, 0, res.Pagination.Total)
	assert.Equal(t, 0, res.Pagination.TotalPages)
	assert.Equal(t, domain.PriceRange{}, res.Facets.PriceRange)
	assert.Empty(t, res.Facets.Categories)
	assert.Empty(t, res.Facets.Attributes)
}

func TestSearchProducts_ImagedFirst(t *testing.T) {
	agg := newTestAggregator(
		source(domain.SupplierAcme, product(domain.SupplierAcme, "G2", "RTX 3060", 500, 0)),
		source(domain.SupplierDynamo,
			product(domain.SupplierDynamo, "G1", "RTX 4070 Ti", 1200, 0, withImage("https://img/4070.jpg")),
			product(domain.SupplierDynamo, "M1", "Office Monitor", 200, 0, withImage("https://img/m1.jpg")),
		),
	)

	got := agg.SearchProducts(context.Background(), "rtx", 10)

	assert.Equal(t, []string{"G1", "G2"}, skus(got))
}

func TestSearchProducts_MatchesCategoriesAndLimits(t *testing.T) {
	var products []domain.Product
	for i := 0; i < 5; i++ {
		products = append(products, product(domain.SupplierCrest, fmt.Sprintf("S%d", i), fmt.Sprintf("Drive %d", i), 100, 0,
			withCategories("Storage")))
	}
	agg := newTestAggregator(source(domain.SupplierCrest, products...))

	assert.Equal(t, []string{"S0", "S1", "S2"}, skus(agg.SearchProducts(context.Background(), "STORAGE", 3)))
	assert.Empty(t, agg.SearchProducts(context.Background(), "  ", 3))
}

func contextualCatalog() *Aggregator {
	return newTestAggregator(
		source(domain.SupplierAcme,
			product(domain.SupplierAcme, "G1", "ASUS RTX 4070 12GB", 1200, 0, withBrand("ASUS"), withCategories("Components", "Graphics Cards")),
			product(domain.SupplierAcme, "G2", "MSI RTX 4060 8GB", 600, 0, withBrand("MSI"), withCategories("Components", "Graphics Cards")),
			product(domain.SupplierAcme, "M1", "ASUS 27\" 165Hz Monitor", 500, 0, withBrand("ASUS"), withCategories("Monitors")),
		),
		source(domain.SupplierCrest,
			product(domain.SupplierCrest, "G3", "ASUS RX 7800 XT 16GB", 1000, 0, withBrand("asus"), withCategories("Components > Graphics Cards", "Graphics Cards")),
			product(domain.SupplierCrest, "C1", "HDMI Cable", 20, 0, withCategories("Accessories")),
		),
	)
}

func TestListProducts_FacetsAreContextual(t *testing.T) {
	agg := contextualCatalog()

	res := agg.ListProducts(context.Background(), domain.ProductFilters{Category: "Graphics Cards", Brand: "ASUS"})

	assert.Equal(t, []string{"G1", "G3"}, skus(res.Items))

	// Categories ignore the category filter but respect the brand filter.
	assert.Equal(t, []domain.FacetCount{
		{Value: "Graphics Cards", Count: 2},
		{Value: "Components", Count: 1},
		{Value: "Components > Graphics Cards", Count: 1},
		{Value: "Monitors", Count: 1},
	}, res.Facets.Categories, spew.Sdump(res.Facets))

	// Brands ignore the brand filter but respect the category filter. They
	// are counted case-insensitively, like the brand filter matches.
	assert.Equal(t, []domain.FacetCount{
		{Value: "ASUS", Count: 2},
		{Value: "MSI", Count: 1},
	}, res.Facets.Brands, spew.Sdump(res.Facets))

	assert.Equal(t, []domain.FacetCount{
		{Value: "acme", Count: 1},
		{Value: "crest", Count: 1},
	}, res.Facets.Suppliers)
	assert.Equal(t, domain.PriceRange{Min: 1000, Max: 1200}, res.Facets.PriceRange)
}

func TestListProducts_AttributeFacetsAndFilters(t *testing.T) {
	agg := contextualCatalog()
	ctx := context.Background()

	res := agg.ListProducts(ctx, domain.ProductFilters{Category: "Graphics Cards"})
	require.Len(t, res.Items, 3)

	facets := map[string][]domain.FacetCount{}
	for _, af := range res.Facets.Attributes {
		facets[af.Key] = af.Values
	}
	assert.Equal(t, []domain.FacetCount{
		{Value: "8GB", Count: 1},
		{Value: "12GB", Count: 1},
		{Value: "16GB", Count: 1},
	}, facets["gpu_memory"], spew.Sdump(res.Facets.Attributes))
	assert.Equal(t, []domain.FacetCount{
		{Value: "RTX 40 Series", Count: 2},
		{Value: "RX 7000 Series", Count: 1},
	}, facets["gpu_series"])

	res = agg.ListProducts(ctx, domain.ProductFilters{
		Category:   "Graphics Cards",
		Attributes: map[string]string{"gpu_series": "rtx 40 series"},
	})
	assert.Equal(t, []string{"G1", "G2"}, skus(res.Items))

	// The category facet still honours the attribute constraint.
	assert.Equal(t, []domain.FacetCount{
		{Value: "Components", Count: 2},
		{Value: "Graphics Cards", Count: 2},
	}, res.Facets.Categories)

	res = agg.ListProducts(ctx, domain.ProductFilters{
		Category:   "Graphics Cards",
		Attributes: map[string]string{"socket": "AM5"},
	})
	assert.Empty(t, res.Items, "keys without a rule exclude everything")

	res = agg.ListProducts(ctx, domain.ProductFilters{Brand: "ASUS"})
	assert.Empty(t, res.Facets.Attributes, "no attribute facets without a category")
}

func TestListProducts_PartialCategoryResolvesAttributeRules(t *testing.T) {
	agg := contextualCatalog()
	ctx := context.Background()

	res := agg.ListProducts(ctx, domain.ProductFilters{Category: "graphics"})
	require.Len(t, res.Items, 3)
	keys := make([]string, 0, len(res.Facets.Attributes))
	for _, af := range res.Facets.Attributes {
		keys = append(keys, af.Key)
	}
	assert.Contains(t, keys, "gpu_series")

	res = agg.ListProducts(ctx, domain.ProductFilters{
		Category:   "graphics",
		Attributes: map[string]string{"gpu_series": "RX 7000 Series"},
	})
	assert.Equal(t, []string{"G3"}, skus(res.Items))
	assert.Equal(t, agg.AttributeKeys("Graphics Cards"), agg.AttributeKeys("graphics"))
}

func TestListProducts_BrandFacetMatchesBrandFilter(t *testing.T) {
	agg := contextualCatalog()

	res := agg.ListProducts(context.Background(), domain.ProductFilters{Brand: "asus"})

	require.Equal(t, "ASUS", res.Facets.Brands[0].Value)
	assert.Equal(t, res.Facets.Brands[0].Count, res.Pagination.Total)
}

func TestListProducts_FilterClauses(t *testing.T) {
	agg := newTestAggregator(
		source(domain.SupplierAcme,
			product(domain.SupplierAcme, "P1", "Keyboard", 50, 0, withStock(0)),
			product(domain.SupplierAcme, "P2", "Mouse", 25, 0, withStock(3)),
		),
		source(domain.SupplierDynamo,
			product(domain.SupplierDynamo, "P3", "Gaming Mouse", 100, 0, withStock(1), withBrand("Logitech")),
		),
	)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters domain.ProductFilters
		want    []string
	}{
		{"search name", domain.ProductFilters{Search: "MOUSE"}, []string{"P3", "P2"}},
		{"search sku", domain.ProductFilters{Search: "p1"}, []string{"P1"}},
		{"search brand", domain.ProductFilters{Search: "logi"}, []string{"P3"}},
		{"brand equality", domain.ProductFilters{Brand: "logitech"}, []string{"P3"}},
		{"brand is not substring", domain.ProductFilters{Brand: "logi"}, []string{}},
		{"price bounds inclusive", domain.ProductFilters{MinPrice: ptr(25), MaxPrice: ptr(50)}, []string{"P2", "P1"}},
		{"in stock", domain.ProductFilters{InStock: true}, []string{"P3", "P2"}},
		{"supplier", domain.ProductFilters{Supplier: domain.SupplierDynamo}, []string{"P3"}},
		{"sort price desc", domain.ProductFilters{SortBy: domain.SortPriceDesc}, []string{"P3", "P1", "P2"}},
		{"sort name asc", domain.ProductFilters{SortBy: domain.SortNameAsc}, []string{"P3", "P1", "P2"}},
		{"sort name desc", domain.ProductFilters{SortBy: domain.SortNameDesc}, []string{"P2", "P1", "P3"}},
		{"default sort puts stock first", domain.ProductFilters{}, []string{"P3", "P2", "P1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := agg.ListProducts(ctx, tt.filters)
			assert.Equal(t, tt.want, skus(res.Items))
		})
	}
}

func TestListProducts_SupplierFilterSkipsOtherSources(t *testing.T) {
	acme := source(domain.SupplierAcme, product(domain.SupplierAcme, "A1", "Alpha", 10, 0))
	dynamo := source(domain.SupplierDynamo, product(domain.SupplierDynamo, "D1", "Delta", 10, 0))
	agg := newTestAggregator(acme, dynamo)

	agg.ListProducts(context.Background(), domain.ProductFilters{Supplier: domain.SupplierAcme})

	assert.Equal(t, int32(1), acme.gets.Load())
	assert.Equal(t, int32(0), dynamo.gets.Load())
}

func TestListProducts_SortNewest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := newTestAggregator(source(domain.SupplierAcme,
		product(domain.SupplierAcme, "OLD", "Old", 1, 0, withCreated(base)),
		product(domain.SupplierAcme, "NEW", "New", 1, 0, withCreated(base.Add(48*time.Hour))),
		product(domain.SupplierAcme, "MID", "Mid", 1, 0, withCreated(base.Add(24*time.Hour))),
	))

	res := agg.ListProducts(context.Background(), domain.ProductFilters{SortBy: domain.SortNewest})

	assert.Equal(t, []string{"NEW", "MID", "OLD"}, skus(res.Items))
}

func TestListProducts_PagesCoverTotal(t *testing.T) {
	var products []domain.Product
	for i := 0; i < 13; i++ {
		products = append(products, product(domain.SupplierCrest, fmt.Sprintf("S%02d", i), fmt.Sprintf("Item %02d", i), float64(i), 0))
	}
	agg := newTestAggregator(source(domain.SupplierCrest, products...))
	ctx := context.Background()

	for limit := 1; limit <= 15; limit++ {
		first := agg.ListProducts(ctx, domain.ProductFilters{Limit: limit})
		seen := map[string]bool{}
		sum := 0
		for page := 1; page <= first.Pagination.TotalPages; page++ {
			res := agg.ListProducts(ctx, domain.ProductFilters{Limit: limit, Page: page})
			sum += len(res.Items)
			for _, p := range res.Items {
				assert.False(t, seen[p.SKU], "duplicate %s at limit %d", p.SKU, limit)
				seen[p.SKU] = true
			}
			assert.Equal(t, page < res.Pagination.TotalPages, res.Pagination.HasNext)
			assert.Equal(t, page > 1, res.Pagination.HasPrev)
		}
		assert.Equal(t, 13, sum, "limit %d", limit)
	}

	past := agg.ListProducts(ctx, domain.ProductFilters{Limit: 5, Page: 9})
	assert.Empty(t, past.Items)
	assert.False(t, past.Pagination.HasNext)

	clamped := agg.ListProducts(ctx, domain.ProductFilters{Limit: 500, Page: -2})
	assert.Equal(t, 1, clamped.Pagination.Page)
	assert.Equal(t, domain.MaxLimit, clamped.Pagination.Limit)
}

func TestListProducts_Idempotent(t *testing.T) {
	agg := contextualCatalog()
	f := domain.ProductFilters{Category: "Graphics Cards", SortBy: domain.SortPriceAsc}

	first := agg.ListProducts(context.Background(), f)
	second := agg.ListProducts(context.Background(), f)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Facets, second.Facets)
}

func TestListProducts_DoesNotReorderSnapshots(t *testing.T) {
	src := source(domain.SupplierAcme,
		product(domain.SupplierAcme, "B", "Bravo", 2, 0),
		product(domain.SupplierAcme, "A", "Alpha", 1, 0),
	)
	agg := newTestAggregator(src)

	agg.ListProducts(context.Background(), domain.ProductFilters{SortBy: domain.SortNameAsc})

	assert.Equal(t, []string{"B", "A"}, skus(src.products))
}

type failingFetcher struct {
	supplier domain.Supplier
}

func (f failingFetcher) Supplier() domain.Supplier { return f.supplier }

func (f failingFetcher) FetchAll(context.Context) ([]domain.Product, error) {
	return nil, errors.New("dial tcp: i/o timeout")
}

type staticFetcher struct {
	supplier domain.Supplier
	products []domain.Product
}

func (f staticFetcher) Supplier() domain.Supplier { return f.supplier }

func (f staticFetcher) FetchAll(context.Context) ([]domain.Product, error) {
	return f.products, nil
}

func TestListProducts_SupplierIsolation(t *testing.T) {
	acme := cache.NewSupplierCache(staticFetcher{domain.SupplierAcme, []domain.Product{
		product(domain.SupplierAcme, "A1", "Alpha", 100, 150, withBrand("ASUS")),
	}}, time.Minute, time.Minute, nil)
	dynamo := cache.NewSupplierCache(failingFetcher{domain.SupplierDynamo}, time.Minute, time.Minute, nil)
	crest := cache.NewSupplierCache(staticFetcher{domain.SupplierCrest, []domain.Product{
		product(domain.SupplierCrest, "C1", "Cable", 20, 0),
	}}, time.Minute, time.Minute, nil)
	agg := newTestAggregator(acme, crest, dynamo)

	res := agg.ListProducts(context.Background(), domain.ProductFilters{Supplier: domain.SupplierAll})

	assert.ElementsMatch(t, []string{"A1", "C1"}, skus(res.Items))
	assert.Equal(t, []domain.FacetCount{{Value: "acme", Count: 1}, {Value: "crest", Count: 1}}, res.Facets.Suppliers)
	assert.Equal(t, domain.PriceRange{Min: 20, Max: 100}, res.Facets.PriceRange)

	var dynamoStatus cache.Status
	for _, st := range agg.CacheStatus() {
		if st.Name == "products:dynamo" {
			dynamoStatus = st
		}
	}
	assert.True(t, dynamoStatus.Loaded)
	assert.Contains(t, dynamoStatus.LastError, "i/o timeout")
}

func TestGetProductBySku(t *testing.T) {
	acme := source(domain.SupplierAcme, product(domain.SupplierAcme, "X1", "Acme copy", 10, 0))
	crest := source(domain.SupplierCrest, product(domain.SupplierCrest, "C9", "Crest only", 10, 0))
	dynamo := source(domain.SupplierDynamo, product(domain.SupplierDynamo, "X1", "Dynamo copy", 10, 0))
	agg := newTestAggregator(acme, crest, dynamo)
	ctx := context.Background()

	p, err := agg.GetProductBySku(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, domain.SupplierAcme, p.Supplier)
	assert.Equal(t, int32(0), crest.gets.Load(), "lookup stops at the first match")

	p, err = agg.GetProductBySku(ctx, "dynamo-X1")
	require.NoError(t, err)
	assert.Equal(t, "Dynamo copy", p.Name)

	_, err = agg.GetProductBySku(ctx, "nope")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = agg.GetProductBySku(ctx, " ")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCategoriesAndBrands(t *testing.T) {
	agg := contextualCatalog()
	ctx := context.Background()

	assert.Equal(t, []domain.FacetCount{
		{Value: "Graphics Cards", Count: 3},
		{Value: "Components", Count: 2},
		{Value: "Accessories", Count: 1},
		{Value: "Components > Graphics Cards", Count: 1},
		{Value: "Monitors", Count: 1},
	}, agg.Categories(ctx))

	assert.Equal(t, []domain.FacetCount{
		{Value: "ASUS", Count: 3},
		{Value: "MSI", Count: 1},
		{Value: "Unknown", Count: 1},
	}, agg.Brands(ctx))
}

func TestListProducts_FacetsTruncatedToTop(t *testing.T) {
	var products []domain.Product
	for i := 0; i < 60; i++ {
		products = append(products, product(domain.SupplierAcme, fmt.Sprintf("B%02d", i), "Thing", 1, 0,
			withBrand(fmt.Sprintf("Brand %02d", i))))
	}
	agg := newTestAggregator(source(domain.SupplierAcme, products...))

	res := agg.ListProducts(context.Background(), domain.ProductFilters{})

	require.Len(t, res.Facets.Brands, MaxFacetValues)
	assert.Equal(t, "Brand 00", res.Facets.Brands[0].Value)
	assert.Equal(t, "Brand 49", res.Facets.Brands[MaxFacetValues-1].Value)
}

func TestClearCaches(t *testing.T) {
	a, b := source(domain.SupplierAcme), source(domain.SupplierCrest)
	agg := newTestAggregator(a, b)

	assert.Equal(t, 2, agg.ClearCaches())
	assert.Equal(t, int32(1), a.invalidated.Load())
	assert.Equal(t, int32(1), b.invalidated.Load())
}

func TestAttributeKeys(t *testing.T) {
	agg := newTestAggregator()
	assert.Equal(t, []string{"memory_type", "capacity", "speed"}, agg.AttributeKeys("memory"))
	assert.Empty(t, agg.AttributeKeys("Cables"))
}

func TestAttributeValueOrdering(t *testing.T) {
	c := newCounter()
	for _, v := range []string{"32\"", "27\"", "24.5\""} {
		c.add(v)
	}
	assert.Equal(t, []string{"24.5\"", "27\"", "32\""}, values(c.byValue()))

	c = newCounter()
	for _, v := range []string{"QHD", "4K UHD", "Full HD"} {
		c.add(v)
	}
	assert.Equal(t, []string{"4K UHD", "Full HD", "QHD"}, values(c.byValue()))
}

func values(counts []domain.FacetCount) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Value
	}
	return out
}
