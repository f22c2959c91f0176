package stats

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/shared"
)

var now = time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)

type countingPending struct {
	n     int
	err   error
	calls atomic.Int32
}

func (c *countingPending) CountPending(context.Context) (int, error) {
	c.calls.Add(1)
	return c.n, c.err
}

func trailWith(t *testing.T, recs ...audit.Record) *audit.Trail {
	t.Helper()
	store := audit.NewMemoryStore()
	for _, rec := range recs {
		rec.ID = uuid.New()
		if rec.Comment == "" {
			rec.Comment = "approved"
		}
		require.NoError(t, store.Insert(context.Background(), rec))
	}
	return audit.NewTrail(store, audit.WithClock(func() time.Time { return now }), audit.WithLocation(time.UTC))
}

func TestStatisticsEmpty(t *testing.T) {
	view := NewView(&countingPending{}, trailWith(t), WithClock(func() time.Time { return now }))
	got, err := view.GetStatistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, Statistics{GeneratedAt: now}, got)
}

func TestStatisticsProjection(t *testing.T) {
	trail := trailWith(t,
		audit.Record{AchievementID: 1, AuditorID: 9, Decision: audit.DecisionApproved, DecidedAt: now.Add(-time.Hour), SubmittedAt: now.Add(-4 * time.Hour)},
		audit.Record{AchievementID: 2, AuditorID: 9, Decision: audit.DecisionRejected, Comment: "blurry", DecidedAt: now.Add(-2 * time.Hour), SubmittedAt: now.Add(-3 * time.Hour)},
		audit.Record{AchievementID: 3, AuditorID: 9, Decision: audit.DecisionApproved, DecidedAt: now.Add(-30 * time.Hour), SubmittedAt: now.Add(-32 * time.Hour)},
	)
	view := NewView(&countingPending{n: 4}, trail)
	got, err := view.GetStatistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, got.PendingCount)
	require.Equal(t, 1, got.TodayApprovedCount)
	require.Equal(t, 2.0, got.AvgProcessingHours)
	require.Equal(t, 0.33, got.RejectionRate)
}

func TestStatisticsStorageFailure(t *testing.T) {
	view := NewView(&countingPending{err: errors.New("timeout")}, trailWith(t))
	_, err := view.GetStatistics(context.Background())
	require.ErrorIs(t, err, shared.ErrStorage)
}

func TestRedisCacheServesUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pending := &countingPending{n: 2}
	view := NewView(pending, trailWith(t), WithCache(NewRedisCache(client, time.Minute)))
	ctx := context.Background()

	first, err := view.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.PendingCount)
	require.True(t, mr.Exists(DefaultCacheKey))

	pending.n = 5
	cached, err := view.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, cached.PendingCount)
	require.Equal(t, int32(1), pending.calls.Load())

	view.Invalidate(ctx)
	require.False(t, mr.Exists(DefaultCacheKey))
	fresh, err := view.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, fresh.PendingCount)

	pending.n = 6
	refreshed, err := view.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, refreshed.PendingCount)
}

func TestCacheOutageFallsBackToCompute(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	view := NewView(&countingPending{n: 3}, trailWith(t), WithCache(NewRedisCache(client, time.Minute)))
	got, err := view.GetStatistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, got.PendingCount)
	view.Invalidate(context.Background())
}

// gatedPending blocks CountPending until release is closed.
type gatedPending struct {
	n       atomic.Int64
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	seen    chan context.Context
}

func newGatedPending(n int64) *gatedPending {
	g := &gatedPending{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
		seen:    make(chan context.Context, 8),
	}
	g.n.Store(n)
	return g
}

func (g *gatedPending) CountPending(ctx context.Context) (int, error) {
	g.calls.Add(1)
	g.seen <- ctx
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return int(g.n.Load()), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestInvalidateDuringComputeDiscardsSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pending := newGatedPending(5)
	view := NewView(pending, trailWith(t), WithCache(NewRedisCache(client, time.Minute)))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := view.GetStatistics(ctx)
		done <- err
	}()
	<-pending.entered

	// a transition commits while the snapshot is being computed
	pending.n.Store(4)
	view.Invalidate(ctx)
	close(pending.release)
	require.NoError(t, <-done)

	fresh, err := view.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, fresh.PendingCount)
	require.Equal(t, int32(2), pending.calls.Load())

	cached, err := view.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, cached.PendingCount)
	require.Equal(t, int32(2), pending.calls.Load())
}

func TestCancelledCallerDoesNotCancelSharedCompute(t *testing.T) {
	pending := newGatedPending(3)
	view := NewView(pending, trailWith(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := view.GetStatistics(ctx)
		errCh <- err
	}()
	<-pending.entered
	computeCtx := <-pending.seen

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.NoError(t, computeCtx.Err())

	close(pending.release)
	got, err := view.GetStatistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, got.PendingCount)
}
