package cache

import (
	"context"
	"log/slog"
	"time"

	"supplier-catalog-service/internal/domain"
)

// ProductFetcher is the part of a supplier adapter the cache depends on.
type ProductFetcher interface {
	Supplier() domain.Supplier
	FetchAll(ctx context.Context) ([]domain.Product, error)
}

// SupplierCache wraps one supplier's product feed. A failed fetch is stored
// as an empty snapshot for failureTTL so one outage never reaches callers.
type SupplierCache struct {
	supplier domain.Supplier
	ttl      *TTL[[]domain.Product]
}

// NewSupplierCache creates the read-through cache for f.
func NewSupplierCache(f ProductFetcher, ttl, failureTTL time.Duration, logger *slog.Logger) *SupplierCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SupplierCache{
		supplier: f.Supplier(),
		ttl: New("products:"+string(f.Supplier()), f.FetchAll, Options[[]domain.Product]{
			TTL:        ttl,
			FailureTTL: failureTTL,
			Fallback:   []domain.Product{},
			Logger:     logger.With(slog.String("supplier", string(f.Supplier()))),
		}),
	}
}

// Supplier returns the supplier whose feed is cached.
func (c *SupplierCache) Supplier() domain.Supplier {
	return c.supplier
}

// Get returns the current product snapshot, fetching it when expired. The
// returned slice is shared and must not be modified.
func (c *SupplierCache) Get(ctx context.Context) []domain.Product {
	return c.ttl.Get(ctx)
}

// Refresh forces a fetch and reports the resulting item count and error.
func (c *SupplierCache) Refresh(ctx context.Context) (int, error) {
	products, err := c.ttl.Refresh(ctx)
	return len(products), err
}

// Invalidate forces the next Get to refetch.
func (c *SupplierCache) Invalidate() {
	c.ttl.Invalidate()
}

// Status reports the cache snapshot state.
func (c *SupplierCache) Status() Status {
	return c.ttl.Status()
}
