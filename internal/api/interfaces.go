package api

import (
	"context"

	"supplier-catalog-service/internal/cache"
	"supplier-catalog-service/internal/domain"
)

// Catalog is the read side served by both transports.
type Catalog interface {
	ListProducts(ctx context.Context, filters domain.ProductFilters) domain.ListResult
	GetProductBySku(ctx context.Context, sku string) (domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) []domain.Product
	Categories(ctx context.Context) []domain.FacetCount
	Brands(ctx context.Context) []domain.FacetCount
	ClearCaches() int
	CacheStatus() []cache.Status
	AttributeKeys(category string) []string
}

// RefreshScheduler exposes the administrative refresh operations.
type RefreshScheduler interface {
	TriggerManualRefresh(ctx context.Context) (domain.SchedulerStats, bool)
	Stats() domain.SchedulerStats
}
