// Package catalog merges every supplier snapshot into one queryable catalog:
// filtering, contextual facets, sorting and pagination.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"supplier-catalog-service/internal/cache"
	"supplier-catalog-service/internal/domain"
	"supplier-catalog-service/internal/extract"
)

var ErrProductNotFound = errors.New("product not found")

// Source is one supplier's read-through product snapshot.
type Source interface {
	Supplier() domain.Supplier
	Get(ctx context.Context) []domain.Product
	Invalidate()
	Status() cache.Status
}

// Aggregator answers catalog queries over a fixed, priority-ordered set of
// sources. It never modifies the snapshots it reads.
type Aggregator struct {
	sources []Source
	rules   *extract.Registry
	log     *slog.Logger
}

// NewAggregator creates an aggregator. sources are given in lookup priority
// order; rules may be nil, in which case no attribute facets are produced.
func NewAggregator(sources []Source, rules *extract.Registry, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		sources: sources,
		rules:   rules,
		log:     logger.With(slog.String("component", "catalog")),
	}
}

// collect reads every source in scope in parallel and concatenates the
// snapshots in source order.
func (a *Aggregator) collect(ctx context.Context, supplier domain.Supplier) []domain.Product {
	scope := domain.ProductFilters{Supplier: supplier}
	parts := make([][]domain.Product, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		if !scope.IncludesSupplier(src.Supplier()) {
			continue
		}
		i, src := i, src
		g.Go(func() error {
			parts[i] = src.Get(ctx)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	all := make([]domain.Product, 0, total)
	for _, p := range parts {
		all = append(all, p...)
	}
	return all
}

// ListProducts filters, facets, sorts and paginates the merged catalog.
func (a *Aggregator) ListProducts(ctx context.Context, filters domain.ProductFilters) domain.ListResult {
	start := time.Now()
	f := filters.Normalized()

	all := a.collect(ctx, f.Supplier)
	filtered := newPredicate(f, a.rules, f.Category).apply(all)
	facets := a.computeFacets(all, f, filtered)

	sortProducts(filtered, f.SortBy)
	items := paginate(filtered, f.Page, f.Limit)

	a.log.Debug("products listed",
		slog.Int("catalog", len(all)),
		slog.Int("matched", len(filtered)),
		slog.Int("page", f.Page),
		slog.Duration("took", time.Since(start)))

	return domain.ListResult{
		Items:      items,
		Pagination: domain.NewPagination(len(filtered), f.Page, f.Limit),
		Facets:     facets,
	}
}

// GetProductBySku scans the sources in priority order and returns the first
// product whose SKU (or ID) matches.
func (a *Aggregator) GetProductBySku(ctx context.Context, sku string) (domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.Product{}, ErrProductNotFound
	}
	for _, src := range a.sources {
		for _, p := range src.Get(ctx) {
			if p.SKU == sku || p.ID == sku {
				return p, nil
			}
		}
	}
	return domain.Product{}, ErrProductNotFound
}

// SearchProducts matches query against name, SKU, brand and category labels.
// Products with images rank first; the order is otherwise stable.
func (a *Aggregator) SearchProducts(ctx context.Context, query string, limit int) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if limit <= 0 {
		limit = domain.DefaultLimit
	}
	limit = min(limit, domain.MaxLimit)
	if q == "" {
		return []domain.Product{}
	}

	matches := make([]domain.Product, 0)
	for _, p := range a.collect(ctx, domain.SupplierAll) {
		if containsFold(q, p.Name, p.SKU, p.Brand) || containsFold(q, p.Categories...) {
			matches = append(matches, p)
		}
	}
	imagesFirst(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Categories returns every category label of the unfiltered catalog ranked
// by product count.
func (a *Aggregator) Categories(ctx context.Context) []domain.FacetCount {
	return countCategories(a.collect(ctx, domain.SupplierAll)).ranked(0)
}

// Brands returns every brand of the unfiltered catalog ranked by product
// count.
func (a *Aggregator) Brands(ctx context.Context) []domain.FacetCount {
	return countBrands(a.collect(ctx, domain.SupplierAll)).ranked(0)
}

// ClearCaches invalidates every source so the next read refetches.
func (a *Aggregator) ClearCaches() int {
	for _, src := range a.sources {
		src.Invalidate()
	}
	a.log.Info("supplier caches cleared", slog.Int("count", len(a.sources)))
	return len(a.sources)
}

// CacheStatus reports the snapshot state of every source.
func (a *Aggregator) CacheStatus() []cache.Status {
	out := make([]cache.Status, 0, len(a.sources))
	for _, src := range a.sources {
		out = append(out, src.Status())
	}
	return out
}

// AttributeKeys lists the dynamic filter keys registered for category.
func (a *Aggregator) AttributeKeys(category string) []string {
	rules := a.rules.Rules(category)
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, r.Key)
	}
	return keys
}
