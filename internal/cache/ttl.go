// Package cache holds single-key, time-bounded caches that sit in front of
// slow upstream loaders.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader produces a fresh value for a cache.
type Loader[T any] func(ctx context.Context) (T, error)

// Options configures a TTL cache.
type Options[T any] struct {
	TTL time.Duration
	// FailureTTL is how long the fallback value is served after a failed
	// load. Zero means the cache's TTL.
	FailureTTL time.Duration
	// Fallback is stored and returned when the loader fails.
	Fallback T
	Logger   *slog.Logger
	Now      func() time.Time
}

// Status describes the current snapshot of a cache.
type Status struct {
	Name      string    `json:"name"`
	Loaded    bool      `json:"loaded"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
	expiresAt time.Time
	err       error
}

type outcome[T any] struct {
	value T
	err   error
}

// TTL caches exactly one value with an expiry deadline set at write time.
// Concurrent loads are collapsed into a single in-flight call.
type TTL[T any] struct {
	name       string
	load       Loader[T]
	ttl        time.Duration
	failureTTL time.Duration
	fallback   T
	now        func() time.Time
	log        *slog.Logger

	mu    sync.RWMutex
	entry *entry[T]
	group singleflight.Group
}

// New creates a TTL cache named name around load.
func New[T any](name string, load Loader[T], opts Options[T]) *TTL[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = opts.TTL
	}
	return &TTL[T]{
		name:       name,
		load:       load,
		ttl:        opts.TTL,
		failureTTL: opts.FailureTTL,
		fallback:   opts.Fallback,
		now:        opts.Now,
		log:        opts.Logger.With(slog.String("cache", name)),
	}
}

// Name returns the cache key.
func (c *TTL[T]) Name() string {
	return c.name
}

// Get returns the cached value, loading it first when missing or expired.
// A failed load yields the fallback value; the error is logged, not returned.
func (c *TTL[T]) Get(ctx context.Context) T {
	if v, ok := c.fresh(); ok {
		return v
	}
	v, _ := c.fetch(ctx)
	return v
}

// Refresh loads a new value regardless of expiry and reports the loader
// error, if any. The fallback value is stored on failure.
func (c *TTL[T]) Refresh(ctx context.Context) (T, error) {
	return c.fetch(ctx)
}

// Invalidate drops the current value so the next Get loads again.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// Status reports the state of the current snapshot.
func (c *TTL[T]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{Name: c.name}
	if c.entry == nil {
		return st
	}
	st.Loaded = true
	st.FetchedAt = c.entry.fetchedAt
	st.ExpiresAt = c.entry.expiresAt
	if c.entry.err != nil {
		st.LastError = c.entry.err.Error()
	}
	return st
}

func (c *TTL[T]) fresh() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil || !c.now().Before(c.entry.expiresAt) {
		var zero T
		return zero, false
	}
	return c.entry.value, true
}

// fetch runs the shared load detached from the caller's cancellation. A
// caller whose ctx ends stops waiting and gets the fallback; the load keeps
// going and its result is stored for everyone else.
func (c *TTL[T]) fetch(ctx context.Context) (T, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.name, func() (interface{}, error) {
		start := c.now()
		value, err := c.load(loadCtx)
		ttl := c.ttl
		if err != nil {
			c.log.Warn("load failed, serving fallback",
				slog.Any("error", err),
				slog.Duration("ttl", c.failureTTL))
			value = c.fallback
			ttl = c.failureTTL
		}

		fetchedAt := c.now()
		c.mu.Lock()
		c.entry = &entry[T]{
			value:     value,
			fetchedAt: fetchedAt,
			expiresAt: fetchedAt.Add(ttl),
			err:       err,
		}
		c.mu.Unlock()

		c.log.Debug("cache loaded", slog.Duration("took", fetchedAt.Sub(start)))
		return outcome[T]{value: value, err: err}, nil
	})

	select {
	case res := <-ch:
		o := res.Val.(outcome[T])
		return o.value, o.err
	case <-ctx.Done():
		c.log.Debug("caller stopped waiting for load", slog.Any("error", ctx.Err()))
		return c.fallback, ctx.Err()
	}
}
