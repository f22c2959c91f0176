// Package approval implements the review side of the achievement lifecycle:
// approving and rejecting pending achievements and reading the review log.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/platform/lock"
	"github.com/achievehub/achievehub/internal/shared"
)

// ApprovedComment is stored on approval records.
const ApprovedComment = "approved"

// MaxReasonLength bounds rejection reasons, in runes.
const MaxReasonLength = 2000

// ReviewStore reads achievements and commits review decisions. CommitDecision
// must update the achievement and append rec in one transaction, and only
// while the achievement is active and pending; otherwise it returns an error
// matching shared.ErrNotFound or shared.ErrInvalidState.
type ReviewStore interface {
	GetByID(ctx context.Context, id int64) (achievement.Achievement, error)
	CommitDecision(ctx context.Context, rec audit.Record) error
}

// Metrics observes workflow outcomes.
type Metrics interface {
	ObserveDecision(decision audit.Decision)
	ObserveBatchFailure(kind shared.Kind)
}

// Transition describes a committed decision.
type Transition struct {
	Record audit.Record
	From   achievement.AuditState
	To     achievement.AuditState
}

// Workflow approves and rejects pending achievements.
type Workflow struct {
	store   ReviewStore
	trail   *audit.Trail
	locker  lock.Locker
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
	hooks   []func(context.Context, Transition)
}

// Option customises a Workflow.
type Option func(*Workflow)

// WithLocker replaces the in-process per-achievement lock.
func WithLocker(l lock.Locker) Option {
	return func(w *Workflow) {
		if l != nil {
			w.locker = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// OnTransition registers a hook fired after every committed decision.
func OnTransition(fn func(context.Context, Transition)) Option {
	return func(w *Workflow) {
		if fn != nil {
			w.hooks = append(w.hooks, fn)
		}
	}
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(store ReviewStore, trail *audit.Trail, opts ...Option) *Workflow {
	w := &Workflow{
		store:  store,
		trail:  trail,
		locker: lock.NewKeyedMutex(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Approve moves a pending achievement to approved.
func (w *Workflow) Approve(ctx context.Context, id, auditorID int64) error {
	return w.decide(ctx, "approval.approve", id, auditorID, audit.DecisionApproved, ApprovedComment)
}

// Reject moves a pending achievement to rejected. The reason is required.
func (w *Workflow) Reject(ctx context.Context, id, auditorID int64, reason string) error {
	const op = "approval.reject"
	reason = shared.NormalizeText(reason)
	if reason == "" {
		return shared.E(shared.KindInvalidArgument, op, "rejection reason is required")
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return shared.E(shared.KindInvalidArgument, op, "rejection reason is too long")
	}
	return w.decide(ctx, op, id, auditorID, audit.DecisionRejected, reason)
}

// BatchApprove approves each id independently and returns how many
// succeeded. Duplicate ids are processed once. Failures are logged and
// counted, never returned.
func (w *Workflow) BatchApprove(ctx context.Context, ids []int64, auditorID int64) int {
	succeeded := 0
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := w.Approve(ctx, id, auditorID); err != nil {
			kind := shared.KindOf(err)
			w.logger.Warn("approval batch item failed",
				slog.Int64("achievement_id", id),
				slog.Int64("auditor_id", auditorID),
				slog.String("kind", string(kind)),
				slog.Any("error", err))
			if w.metrics != nil {
				w.metrics.ObserveBatchFailure(kind)
			}
			continue
		}
		succeeded++
	}
	return succeeded
}

// GetHistory returns the decisions on one achievement, newest first.
func (w *Workflow) GetHistory(ctx context.Context, id int64) ([]audit.Record, error) {
	return w.trail.History(ctx, id)
}

// GetReviewerHistory returns one page of an auditor's decisions, newest first.
func (w *Workflow) GetReviewerHistory(ctx context.Context, auditorID int64, page, pageSize int) (audit.Page, error) {
	return w.trail.ReviewerHistory(ctx, auditorID, page, pageSize)
}

func (w *Workflow) decide(ctx context.Context, op string, id, auditorID int64, decision audit.Decision, comment string) error {
	if auditorID == 0 {
		return shared.E(shared.KindInvalidArgument, op, "auditor is required")
	}
	if err := ctx.Err(); err != nil {
		return shared.StorageFailure(op, err)
	}
	release, err := w.locker.Lock(ctx, shared.AchievementLockKey(id))
	if err != nil {
		return shared.StorageFailure(op, err)
	}
	defer release()

	current, err := w.store.GetByID(ctx, id)
	if err != nil {
		return classify(op, err)
	}
	if !current.Active {
		return shared.E(shared.KindNotFound, op, "achievement not found")
	}
	if current.AuditState != achievement.StatePending {
		return shared.E(shared.KindInvalidState, op, "achievement is not pending review")
	}

	rec := audit.Record{
		ID:            uuid.New(),
		AchievementID: id,
		AuditorID:     auditorID,
		Decision:      decision,
		Comment:       comment,
		DecidedAt:     w.now().UTC(),
		SubmittedAt:   current.SubmittedAt,
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = current.CreatedAt
	}
	// last point at which the caller may still abort
	if err := ctx.Err(); err != nil {
		return shared.StorageFailure(op, err)
	}
	if err := w.store.CommitDecision(context.WithoutCancel(ctx), rec); err != nil {
		return classify(op, err)
	}

	if w.metrics != nil {
		w.metrics.ObserveDecision(decision)
	}
	t := Transition{Record: rec, From: current.AuditState, To: stateFor(decision)}
	for _, hook := range w.hooks {
		hook(ctx, t)
	}
	return nil
}

func stateFor(d audit.Decision) achievement.AuditState {
	if d == audit.DecisionRejected {
		return achievement.StateRejected
	}
	return achievement.StateApproved
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return &shared.Error{Kind: shared.KindNotFound, Op: op, Msg: "achievement not found", Err: err}
	case errors.Is(err, shared.ErrInvalidState):
		return &shared.Error{Kind: shared.KindInvalidState, Op: op, Msg: "achievement is not pending review", Err: err}
	}
	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return shared.StorageFailure(op, err)
}
