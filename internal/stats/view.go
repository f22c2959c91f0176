// Package stats projects review statistics from the achievement store and
// the audit trail.
package stats

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/shared"
)

// PendingCounter counts active achievements awaiting review.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Statistics is the dashboard projection.
type Statistics struct {
	PendingCount       int       `json:"pending_count"`
	TodayApprovedCount int       `json:"today_approved_count"`
	AvgProcessingHours float64   `json:"avg_processing_hours"`
	RejectionRate      float64   `json:"rejection_rate"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// Cache stores the last computed Statistics. Invalidate advances the
// generation; Get only serves a snapshot stored under the current one.
type Cache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context) (Statistics, bool, error)
	Set(ctx context.Context, gen int64, s Statistics) error
	Invalidate(ctx context.Context) error
}

const flightKey = "statistics"

// computeTimeout bounds a shared computation, which outlives the request that
// started it.
const computeTimeout = 30 * time.Second

// View computes Statistics on demand. With a Cache it serves cached values
// until Invalidate is called or the entry expires.
type View struct {
	pending PendingCounter
	trail   *audit.Trail
	cache   Cache
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
}

// Option customises a View.
type Option func(*View)

// WithCache enables caching.
func WithCache(c Cache) Option {
	return func(v *View) { v.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithClock overrides time.Now for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}

// NewView constructs a View.
func NewView(pending PendingCounter, trail *audit.Trail, opts ...Option) *View {
	v := &View{pending: pending, trail: trail, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// GetStatistics returns the current statistics. Concurrent callers share one
// computation; a caller whose ctx ends stops waiting without cancelling it.
func (v *View) GetStatistics(ctx context.Context) (Statistics, error) {
	if v.cache != nil {
		cached, ok, err := v.cache.Get(ctx)
		if err != nil {
			v.logger.Warn("statistics cache read failed", slog.Any("error", err))
		} else if ok {
			return cached, nil
		}
	}
	ch := v.group.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		return v.computeAndStore(fctx)
	})
	select {
	case <-ctx.Done():
		return Statistics{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Statistics{}, res.Err
		}
		return res.Val.(Statistics), nil
	}
}

// Invalidate drops the cached statistics and detaches callers from any
// computation already running. It is registered as a review transition hook
// and never fails the caller.
func (v *View) Invalidate(ctx context.Context) {
	v.group.Forget(flightKey)
	if v.cache == nil {
		return
	}
	if err := v.cache.Invalidate(ctx); err != nil {
		v.logger.Warn("statistics cache invalidation failed", slog.Any("error", err))
	}
}

// Refresh recomputes the statistics and replaces the cached value.
func (v *View) Refresh(ctx context.Context) (Statistics, error) {
	v.Invalidate(ctx)
	return v.GetStatistics(ctx)
}

// computeAndStore caches the result under the generation read before the
// computation, so a snapshot that raced an invalidation is never served.
func (v *View) computeAndStore(ctx context.Context) (Statistics, error) {
	var gen int64
	cacheable := v.cache != nil
	if cacheable {
		g, err := v.cache.Generation(ctx)
		if err != nil {
			v.logger.Warn("statistics cache generation read failed", slog.Any("error", err))
			cacheable = false
		}
		gen = g
	}
	s, err := v.compute(ctx)
	if err != nil {
		return Statistics{}, err
	}
	if cacheable {
		if err := v.cache.Set(ctx, gen, s); err != nil {
			v.logger.Warn("statistics cache write failed", slog.Any("error", err))
		}
	}
	return s, nil
}

func (v *View) compute(ctx context.Context) (Statistics, error) {
	var s Statistics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := v.pending.CountPending(gctx)
		if err != nil {
			return shared.StorageFailure("stats.pending", err)
		}
		s.PendingCount = n
		return nil
	})
	g.Go(func() error {
		n, err := v.trail.ApprovedToday(gctx)
		s.TodayApprovedCount = n
		return err
	})
	g.Go(func() error {
		avg, err := v.trail.AverageProcessingHours(gctx, audit.Window{})
		s.AvgProcessingHours = avg
		return err
	})
	g.Go(func() error {
		rate, err := v.trail.RejectionRate(gctx, audit.Window{})
		s.RejectionRate = rate
		return err
	})
	if err := g.Wait(); err != nil {
		return Statistics{}, err
	}
	s.GeneratedAt = v.now().UTC()
	return s, nil
}
