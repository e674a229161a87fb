package store

import (
	"context"

	"supplier-catalog-service/internal/domain"
)

// ListRefreshesParams holds parameters for listing refresh history.
type ListRefreshesParams struct {
	Limit      int
	Offset     int
	Trigger    *string // "startup", "schedule" or "manual"
	FailedOnly bool    // Only cycles where at least one supplier failed
}

// RefreshHistoryStorer defines the persistence operations for refresh cycles.
type RefreshHistoryStorer interface {
	SaveRefreshCycle(ctx context.Context, cycle domain.RefreshCycle) error
	GetRefreshCycle(ctx context.Context, id string) (*domain.RefreshCycle, error)
	ListRefreshCycles(ctx context.Context, params ListRefreshesParams) ([]domain.RefreshCycle, int, error) // Returns cycles (newest first) and total count
	Ping(ctx context.Context) error
}
