// Package scheduler refreshes every supplier cache on a fixed cadence and on
// demand, never running two refresh cycles at once.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"supplier-catalog-service/internal/domain"
)

const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

const historyTimeout = 5 * time.Second

// Refresher forces one supplier snapshot to reload.
type Refresher interface {
	Supplier() domain.Supplier
	Refresh(ctx context.Context) (int, error)
}

// Enricher runs the best-effort background step after a cycle.
type Enricher interface {
	EnrichImages(ctx context.Context) error
}

// HistoryRecorder persists completed cycles.
type HistoryRecorder interface {
	SaveRefreshCycle(ctx context.Context, cycle domain.RefreshCycle) error
}

// Observer is notified of every completed cycle.
type Observer interface {
	ObserveRefresh(cycle domain.RefreshCycle)
}

type Options struct {
	Interval          time.Duration
	RefreshOnStart    bool
	Enricher          Enricher
	EnrichmentTimeout time.Duration
	History           HistoryRecorder
	Observer          Observer
	Logger            *slog.Logger
	Now               func() time.Time
}

// Scheduler is either idle or running exactly one refresh cycle. Cycles
// refresh the targets serially in the order given.
type Scheduler struct {
	targets []Refresher
	opts    Options
	log     *slog.Logger

	mu         sync.Mutex
	refreshing bool
	stats      domain.SchedulerStats
	lifetime   context.Context

	cycleDone chan struct{}
	enriching atomic.Bool
	wg        sync.WaitGroup
}

func New(targets []Refresher, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.EnrichmentTimeout <= 0 {
		opts.EnrichmentTimeout = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		targets:   targets,
		opts:      opts,
		log:       opts.Logger.With(slog.String("component", "scheduler")),
		stats:     domain.SchedulerStats{LastResults: []domain.SupplierRefreshResult{}},
		lifetime:  context.Background(),
		cycleDone: make(chan struct{}, 1),
	}
}

// Run drives scheduled cycles until ctx is done. Background enrichment is
// bound to ctx as well.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.lifetime = ctx
	s.mu.Unlock()

	s.log.Info("scheduler started",
		slog.Duration("interval", s.opts.Interval),
		slog.Bool("refresh_on_start", s.opts.RefreshOnStart))

	if s.opts.RefreshOnStart {
		s.runCycle(ctx, TriggerStartup)
	} else {
		s.mu.Lock()
		if s.stats.NextRefresh == nil {
			next := s.opts.Now().Add(s.opts.Interval)
			s.stats.NextRefresh = &next
		}
		s.mu.Unlock()
	}

	for {
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		if wait, ok := s.untilNext(); ok {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-s.cycleDone:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
			if s.due() {
				s.runCycle(ctx, TriggerSchedule)
			}
		}
	}
}

// untilNext returns the wait before the next scheduled cycle; ok is false
// while a cycle is running.
func (s *Scheduler) untilNext() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing {
		return 0, false
	}
	if s.stats.NextRefresh == nil {
		return s.opts.Interval, true
	}
	return max(s.stats.NextRefresh.Sub(s.opts.Now()), 0), true
}

func (s *Scheduler) due() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.NextRefresh == nil || !s.opts.Now().Before(*s.stats.NextRefresh)
}

// TriggerManualRefresh runs a cycle now unless one is already running, in
// which case it returns the current stats without starting another.
func (s *Scheduler) TriggerManualRefresh(ctx context.Context) (domain.SchedulerStats, bool) {
	return s.runCycle(ctx, TriggerManual)
}

// Stats returns a copy of the current scheduler state.
func (s *Scheduler) Stats() domain.SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wait blocks until background enrichment has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) snapshotLocked() domain.SchedulerStats {
	st := s.stats
	st.IsRefreshing = s.refreshing
	st.LastResults = append([]domain.SupplierRefreshResult{}, s.stats.LastResults...)
	if s.stats.LastRefresh != nil {
		t := *s.stats.LastRefresh
		st.LastRefresh = &t
	}
	if s.stats.NextRefresh != nil {
		t := *s.stats.NextRefresh
		st.NextRefresh = &t
	}
	return st
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) (domain.SchedulerStats, bool) {
	s.mu.Lock()
	if s.refreshing {
		st := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Info("refresh already in progress, trigger ignored", slog.String("trigger", trigger))
		return st, false
	}
	s.refreshing = true
	s.mu.Unlock()

	cycle := domain.RefreshCycle{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.opts.Now(),
		Results:   make([]domain.SupplierRefreshResult, 0, len(s.targets)),
	}
	log := s.log.With(slog.String("cycle_id", cycle.ID), slog.String("trigger", trigger))
	log.Info("refresh cycle started", slog.Int("suppliers", len(s.targets)))

	for _, t := range s.targets {
		res := s.refreshOne(ctx, t)
		if res.Success {
			log.Info("supplier refreshed",
				slog.String("supplier", string(res.Supplier)),
				slog.Int("items", res.ItemCount),
				slog.Duration("took", res.Duration))
		} else {
			log.Warn("supplier refresh failed",
				slog.String("supplier", string(res.Supplier)),
				slog.String("error", res.Error),
				slog.Duration("took", res.Duration))
		}
		cycle.Results = append(cycle.Results, res)
	}
	cycle.FinishedAt = s.opts.Now()

	s.mu.Lock()
	finished := cycle.FinishedAt
	next := cycle.StartedAt.Add(s.opts.Interval)
	s.refreshing = false
	s.stats.LastRefresh = &finished
	s.stats.NextRefresh = &next
	s.stats.RefreshCount++
	s.stats.LastCycleID = cycle.ID
	s.stats.LastResults = cycle.Results
	st := s.snapshotLocked()
	lifetime := s.lifetime
	s.mu.Unlock()

	select {
	case s.cycleDone <- struct{}{}:
	default:
	}

	log.Info("refresh cycle finished",
		slog.Duration("took", cycle.FinishedAt.Sub(cycle.StartedAt)),
		slog.Any("failed", cycle.FailedSuppliers()),
		slog.Time("next_refresh", next))

	if s.opts.Observer != nil {
		s.opts.Observer.ObserveRefresh(cycle)
	}
	s.record(ctx, cycle)
	s.enrich(lifetime)

	return st, true
}

// refreshOne refreshes a single target. A panic is turned into a failed
// result so the cycle can continue.
func (s *Scheduler) refreshOne(ctx context.Context, t Refresher) (res domain.SupplierRefreshResult) {
	start := s.opts.Now()
	res.Supplier = t.Supplier()
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.ItemCount = 0
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = s.opts.Now().Sub(start)
	}()

	n, err := t.Refresh(ctx)
	res.ItemCount = n
	res.Success = err == nil
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (s *Scheduler) record(ctx context.Context, cycle domain.RefreshCycle) {
	if s.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := s.opts.History.SaveRefreshCycle(ctx, cycle); err != nil {
		s.log.Error("failed to save refresh history",
			slog.String("cycle_id", cycle.ID),
			slog.Any("error", err))
	}
}

// enrich starts the enrichment step in its own goroutine. At most one runs
// at a time; its outcome is only logged.
func (s *Scheduler) enrich(parent context.Context) {
	if s.opts.Enricher == nil {
		return
	}
	if !s.enriching.CompareAndSwap(false, true) {
		s.log.Debug("image enrichment still running, skipped")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.enriching.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("image enrichment panicked", slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(parent, s.opts.EnrichmentTimeout)
		defer cancel()

		start := time.Now()
		if err := s.opts.Enricher.EnrichImages(ctx); err != nil {
			s.log.Warn("image enrichment failed",
				slog.Any("error", err),
				slog.Duration("took", time.Since(start)))
			return
		}
		s.log.Info("image enrichment finished", slog.Duration("took", time.Since(start)))
	}()
}
