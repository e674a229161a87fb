package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"supplier-catalog-service/internal/cache"
	"supplier-catalog-service/internal/domain"
)

// MockCatalog is a mock implementation of Catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) ListProducts(ctx context.Context, filters domain.ProductFilters) domain.ListResult {
	args := m.Called(ctx, filters)
	return args.Get(0).(domain.ListResult)
}

func (m *MockCatalog) GetProductBySku(ctx context.Context, sku string) (domain.Product, error) {
	args := m.Called(ctx, sku)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockCatalog) SearchProducts(ctx context.Context, query string, limit int) []domain.Product {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]domain.Product)
}

func (m *MockCatalog) Categories(ctx context.Context) []domain.FacetCount {
	args := m.Called(ctx)
	return args.Get(0).([]domain.FacetCount)
}

func (m *MockCatalog) Brands(ctx context.Context) []domain.FacetCount {
	args := m.Called(ctx)
	return args.Get(0).([]domain.FacetCount)
}

func (m *MockCatalog) ClearCaches() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockCatalog) CacheStatus() []cache.Status {
	args := m.Called()
	return args.Get(0).([]cache.Status)
}

func (m *MockCatalog) AttributeKeys(category string) []string {
	args := m.Called(category)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

// MockScheduler is a mock implementation of RefreshScheduler
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) TriggerManualRefresh(ctx context.Context) (domain.SchedulerStats, bool) {
	args := m.Called(ctx)
	return args.Get(0).(domain.SchedulerStats), args.Bool(1)
}

func (m *MockScheduler) Stats() domain.SchedulerStats {
	args := m.Called()
	return args.Get(0).(domain.SchedulerStats)
}

func PtrTo[T any](v T) *T {
	return &v
}

func sampleProduct() domain.Product {
	return domain.Product{
		SKU:        "A1",
		Name:       "Logitech MX Master 3S",
		Price:      149,
		RRP:        179,
		Brand:      "Logitech",
		Categories: []string{"Peripherals", "Mice"},
		Supplier:   domain.SupplierAcme,
		Stock:      domain.NewStock(map[string]int{"AKL": 3}),
	}.Finalize()
}
