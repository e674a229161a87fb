package store

import (
	"context"
	"sync"

	"supplier-catalog-service/internal/domain"
)

// DefaultMemoryCapacity is the number of cycles MemoryStore keeps when no
// capacity is given.
const DefaultMemoryCapacity = 100

// MemoryStore keeps the most recent refresh cycles in a fixed-size ring. It is
// used when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	cycles []domain.RefreshCycle
	next   int
	full   bool
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{cycles: make([]domain.RefreshCycle, capacity)}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) SaveRefreshCycle(ctx context.Context, cycle domain.RefreshCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.recentLocked() {
		if c.ID == cycle.ID {
			return ErrRefreshCycleExists
		}
	}
	cycle.Results = append([]domain.SupplierRefreshResult{}, cycle.Results...)
	s.cycles[s.next] = cycle
	s.next = (s.next + 1) % len(s.cycles)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *MemoryStore) GetRefreshCycle(ctx context.Context, id string) (*domain.RefreshCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.recentLocked() {
		if c.ID == id {
			c.Results = append([]domain.SupplierRefreshResult{}, c.Results...)
			return &c, nil
		}
	}
	return nil, ErrRefreshCycleNotFound
}

func (s *MemoryStore) ListRefreshCycles(ctx context.Context, params ListRefreshesParams) ([]domain.RefreshCycle, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.RefreshCycle, 0)
	for _, c := range s.recentLocked() {
		if params.Trigger != nil && *params.Trigger != "" && c.Trigger != *params.Trigger {
			continue
		}
		if params.FailedOnly && len(c.FailedSuppliers()) == 0 {
			continue
		}
		matched = append(matched, c)
	}

	total := len(matched)
	if params.Offset >= total {
		return []domain.RefreshCycle{}, total, nil
	}
	end := total
	if params.Limit > 0 {
		end = min(params.Offset+params.Limit, total)
	}
	page := make([]domain.RefreshCycle, 0, end-params.Offset)
	for _, c := range matched[params.Offset:end] {
		c.Results = append([]domain.SupplierRefreshResult{}, c.Results...)
		page = append(page, c)
	}
	return page, total, nil
}

// recentLocked returns the stored cycles, newest first.
func (s *MemoryStore) recentLocked() []domain.RefreshCycle {
	n := s.next
	if s.full {
		n = len(s.cycles)
	}
	out := make([]domain.RefreshCycle, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.cycles)) % len(s.cycles)
		out = append(out, s.cycles[idx])
	}
	return out
}
