package supplier

import (
	"context"
	"time"

	"supplier-catalog-service/internal/domain"
)

// FetchObserver receives the outcome of every FetchAll call.
type FetchObserver interface {
	ObserveFetch(supplier domain.Supplier, took time.Duration, items int, err error)
}

type observed struct {
	Adapter
	obs FetchObserver
}

// Observe wraps a so that every fetch is reported to obs.
func Observe(a Adapter, obs FetchObserver) Adapter {
	if obs == nil {
		return a
	}
	return &observed{Adapter: a, obs: obs}
}

func (o *observed) FetchAll(ctx context.Context) ([]domain.Product, error) {
	start := time.Now()
	products, err := o.Adapter.FetchAll(ctx)
	o.obs.ObserveFetch(o.Supplier(), time.Since(start), len(products), err)
	return products, err
}
