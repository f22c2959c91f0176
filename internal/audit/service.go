package audit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/achievehub/achievehub/internal/shared"
)

// Trail serves the read side of the review log.
type Trail struct {
	store RecordStore
	now   func() time.Time
	loc   *time.Location
}

// TrailOption customises a Trail.
type TrailOption func(*Trail)

// WithClock overrides the clock used for day boundaries.
func WithClock(now func() time.Time) TrailOption {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLocation sets the zone whose midnight starts "today". The default is
// UTC.
func WithLocation(loc *time.Location) TrailOption {
	return func(t *Trail) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// NewTrail builds a Trail over store.
func NewTrail(store RecordStore, opts ...TrailOption) *Trail {
	t := &Trail{store: store, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Store exposes the underlying record store.
func (t *Trail) Store() RecordStore {
	return t.store
}

// History returns the records of one achievement, newest first.
func (t *Trail) History(ctx context.Context, achievementID int64) ([]Record, error) {
	if t.store == nil {
		return nil, errors.New("audit: record store not configured")
	}
	rows, err := t.store.QueryByAchievement(ctx, achievementID)
	if err != nil {
		return nil, shared.StorageFailure("audit.history", err)
	}
	out := make([]Record, len(rows))
	for i, rec := range rows {
		out[len(rows)-1-i] = rec
	}
	return out, nil
}

// ReviewerHistory returns one page of the decisions made by auditorID.
func (t *Trail) ReviewerHistory(ctx context.Context, auditorID int64, page, pageSize int) (Page, error) {
	if t.store == nil {
		return Page{}, errors.New("audit: record store not configured")
	}
	page, pageSize = shared.ClampPage(page, pageSize)
	rows, err := t.store.QueryByAuditor(ctx, auditorID, shared.Offset(page, pageSize), pageSize+1)
	if err != nil {
		return Page{}, shared.StorageFailure("audit.reviewer_history", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []Record{}
	}
	return Page{Records: rows, Paging: paging}, nil
}

// ApprovedToday counts approvals since midnight in the trail's location.
func (t *Trail) ApprovedToday(ctx context.Context) (int, error) {
	return t.ApprovedSince(ctx, StartOfDay(t.now(), t.loc))
}

// ApprovedSince counts approvals decided at or after since.
func (t *Trail) ApprovedSince(ctx context.Context, since time.Time) (int, error) {
	if t.store == nil {
		return 0, errors.New("audit: record store not configured")
	}
	n, err := t.store.CountApprovedSince(ctx, since)
	if err != nil {
		return 0, shared.StorageFailure("audit.approved_since", err)
	}
	return n, nil
}

// AverageProcessingHours averages submission-to-decision time over window.
func (t *Trail) AverageProcessingHours(ctx context.Context, window Window) (float64, error) {
	if t.store == nil {
		return 0, errors.New("audit: record store not configured")
	}
	v, err := t.store.AverageProcessingHours(ctx, window)
	if err != nil {
		return 0, shared.StorageFailure("audit.avg_processing", err)
	}
	return round2(v), nil
}

// RejectionRate returns rejected / (approved + rejected) over window.
func (t *Trail) RejectionRate(ctx context.Context, window Window) (float64, error) {
	if t.store == nil {
		return 0, errors.New("audit: record store not configured")
	}
	v, err := t.store.RejectionRate(ctx, window)
	if err != nil {
		return 0, shared.StorageFailure("audit.rejection_rate", err)
	}
	return round2(v), nil
}

// StartOfDay truncates now to midnight in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return math.Round(v*100) / 100
}
