package domain

import "time"

// SupplierRefreshResult records the outcome of refreshing one supplier cache.
type SupplierRefreshResult struct {
	Supplier  Supplier      `json:"supplier"`
	Success   bool          `json:"success"`
	ItemCount int           `json:"itemCount"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// RefreshCycle is one completed pass over every supplier.
type RefreshCycle struct {
	ID         string                  `json:"id"`
	Trigger    string                  `json:"trigger"` // "startup", "schedule" or "manual"
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt time.Time               `json:"finishedAt"`
	Results    []SupplierRefreshResult `json:"results"`
}

// FailedSuppliers lists the suppliers whose refresh did not succeed.
func (c RefreshCycle) FailedSuppliers() []string {
	failed := make([]string, 0)
	for _, r := range c.Results {
		if !r.Success {
			failed = append(failed, string(r.Supplier))
		}
	}
	return failed
}

// SchedulerStats is a point-in-time view of the refresh scheduler.
type SchedulerStats struct {
	IsRefreshing bool                    `json:"isRefreshing"`
	LastRefresh  *time.Time              `json:"lastRefresh,omitempty"`
	NextRefresh  *time.Time              `json:"nextRefresh,omitempty"`
	RefreshCount int                     `json:"refreshCount"`
	LastCycleID  string                  `json:"lastCycleId,omitempty"`
	LastResults  []SupplierRefreshResult `json:"lastResults"`
}
