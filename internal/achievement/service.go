package achievement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/achievehub/achievehub/internal/platform/lock"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/shared"
)

// Service manages the submission side of the achievement lifecycle.
type Service struct {
	repo      Repository
	evaluator *rbac.Evaluator
	locker    lock.Locker
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
	onChange  []func(context.Context)
}

// Option customises a Service.
type Option func(*Service)

// WithLocker shares the per-achievement lock with the review workflow so
// edits and decisions on one achievement never interleave.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// OnChange registers a callback fired after the pending set may have changed.
func OnChange(fn func(context.Context)) Option {
	return func(s *Service) {
		if fn != nil {
			s.onChange = append(s.onChange, fn)
		}
	}
}

// NewService constructs the achievement service.
func NewService(repo Repository, evaluator *rbac.Evaluator, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		evaluator: evaluator,
		locker:    lock.NewKeyedMutex(),
		validator: validator.New(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a new achievement owned by actor and queues it for review.
func (s *Service) Submit(ctx context.Context, actor rbac.Actor, input Input) (Achievement, error) {
	const op = "achievement.submit"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermCreate, rbac.NoTarget) {
		return Achievement{}, denied(op)
	}
	input, err := s.validate(op, input)
	if err != nil {
		return Achievement{}, err
	}
	now := s.now().UTC()
	a := Achievement{
		OwnerID:     actor.ID,
		Name:        input.Name,
		Category:    input.Category,
		Content:     input.Content,
		AuditState:  StatePending,
		Active:      true,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.repo.Create(ctx, a)
	if err != nil {
		return Achievement{}, classify(op, err)
	}
	a.ID = id
	s.changed(ctx)
	return a, nil
}

// Update edits an achievement and sends it back to review.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, input Input) (Achievement, error) {
	const op = "achievement.update"
	if !s.mayEither(ctx, actor, rbac.PermUpdateAny, rbac.PermUpdateOwn) {
		return Achievement{}, denied(op)
	}
	input, err := s.validate(op, input)
	if err != nil {
		return Achievement{}, err
	}
	var updated Achievement
	err = s.withLock(ctx, op, id, func() error {
		current, err := s.load(ctx, op, id)
		if err != nil {
			return err
		}
		if !s.owns(ctx, actor, current, rbac.PermUpdateAny, rbac.PermUpdateOwn) {
			return denied(op)
		}
		now := s.now().UTC()
		current.Name = input.Name
		current.Category = input.Category
		current.Content = input.Content
		current.AuditState = StatePending
		current.AuditorID = 0
		current.AuditedAt = time.Time{}
		current.SubmittedAt = now
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, current); err != nil {
			return classify(op, err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return Achievement{}, err
	}
	s.changed(ctx)
	return updated, nil
}

// Delete soft-deletes an achievement.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	const op = "achievement.delete"
	if !s.mayEither(ctx, actor, rbac.PermDeleteAny, rbac.PermDeleteOwn) {
		return denied(op)
	}
	err := s.withLock(ctx, op, id, func() error {
		current, err := s.load(ctx, op, id)
		if err != nil {
			return err
		}
		if !s.owns(ctx, actor, current, rbac.PermDeleteAny, rbac.PermDeleteOwn) {
			return denied(op)
		}
		return s.deactivate(ctx, op, current)
	})
	if err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

// BatchDelete soft-deletes every listed achievement independently and
// returns how many were removed. Only holders of DELETE_ANY may call it.
func (s *Service) BatchDelete(ctx context.Context, actor rbac.Actor, ids []int64) (int, error) {
	const op = "achievement.batch_delete"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermDeleteAny, rbac.NoTarget) {
		return 0, denied(op)
	}
	deleted := 0
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		err := s.withLock(ctx, op, id, func() error {
			current, err := s.load(ctx, op, id)
			if err != nil {
				return err
			}
			return s.deactivate(ctx, op, current)
		})
		if err != nil {
			s.logger.Warn("achievement batch delete item failed",
				slog.Int64("achievement_id", id),
				slog.String("kind", string(shared.KindOf(err))),
				slog.Any("error", err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.changed(ctx)
	}
	return deleted, nil
}

// Get returns one achievement. Unpublished achievements are only visible to
// their owner and to reviewers.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (Achievement, error) {
	const op = "achievement.get"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermRead, rbac.NoTarget) {
		return Achievement{}, denied(op)
	}
	a, err := s.load(ctx, op, id)
	if err != nil {
		return Achievement{}, err
	}
	if a.AuditState != StateApproved && a.OwnerID != actor.ID &&
		!s.evaluator.Evaluate(ctx, actor, rbac.PermApprove, rbac.NoTarget) {
		return Achievement{}, shared.E(shared.KindNotFound, op, "achievement not found")
	}
	return a, nil
}

// ListPending lists the review queue.
func (s *Service) ListPending(ctx context.Context, actor rbac.Actor, filter ListFilter) (ListResult, error) {
	const op = "achievement.list_pending"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermApprove, rbac.NoTarget) {
		return ListResult{}, denied(op)
	}
	filter.State = StatePending
	filter.OwnerID = 0
	return s.list(ctx, op, filter)
}

// Search lists published achievements.
func (s *Service) Search(ctx context.Context, actor rbac.Actor, filter ListFilter) (ListResult, error) {
	const op = "achievement.search"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermSearch, rbac.NoTarget) {
		return ListResult{}, denied(op)
	}
	filter.State = StateApproved
	return s.list(ctx, op, filter)
}

// ListMine lists the actor's own achievements in every state.
func (s *Service) ListMine(ctx context.Context, actor rbac.Actor, page, pageSize int) (ListResult, error) {
	const op = "achievement.list_mine"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermRead, rbac.NoTarget) {
		return ListResult{}, denied(op)
	}
	return s.list(ctx, op, ListFilter{OwnerID: actor.ID, Page: page, PageSize: pageSize})
}

// CountPending reports the size of the review queue.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	n, err := s.repo.CountPending(ctx)
	if err != nil {
		return 0, classify("achievement.count_pending", err)
	}
	return n, nil
}

func (s *Service) list(ctx context.Context, op string, filter ListFilter) (ListResult, error) {
	filter.Page, filter.PageSize = shared.ClampPage(filter.Page, filter.PageSize)
	filter.Name = shared.NormalizeText(filter.Name)
	filter.Category = shared.NormalizeText(filter.Category)
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return ListResult{}, shared.E(shared.KindInvalidArgument, op, "end date precedes start date")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, classify(op, err)
	}
	if items == nil {
		items = []Achievement{}
	}
	return ListResult{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PageSize, total)}, nil
}

func (s *Service) load(ctx context.Context, op string, id int64) (Achievement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Achievement{}, classify(op, err)
	}
	if !a.Active {
		return Achievement{}, shared.E(shared.KindNotFound, op, "achievement not found")
	}
	return a, nil
}

func (s *Service) deactivate(ctx context.Context, op string, a Achievement) error {
	a.Active = false
	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return classify(op, err)
	}
	return nil
}

func (s *Service) withLock(ctx context.Context, op string, id int64, fn func() error) error {
	release, err := s.locker.Lock(ctx, shared.AchievementLockKey(id))
	if err != nil {
		return shared.StorageFailure(op, err)
	}
	defer release()
	return fn()
}

// mayEither is the role-level preflight: the actor holds the broad permission
// or the ownership-scoped one for its own resources.
func (s *Service) mayEither(ctx context.Context, actor rbac.Actor, anyPerm, ownPerm rbac.Permission) bool {
	return s.evaluator.Evaluate(ctx, actor, anyPerm, rbac.NoTarget) ||
		s.evaluator.Evaluate(ctx, actor, ownPerm, rbac.OwnedBy(0, actor.ID))
}

func (s *Service) owns(ctx context.Context, actor rbac.Actor, a Achievement, anyPerm, ownPerm rbac.Permission) bool {
	return s.evaluator.Evaluate(ctx, actor, anyPerm, rbac.NoTarget) ||
		s.evaluator.Evaluate(ctx, actor, ownPerm, rbac.OwnedBy(a.ID, a.OwnerID))
}

func (s *Service) validate(op string, input Input) (Input, error) {
	input = input.normalized()
	if err := s.validator.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return Input{}, shared.E(shared.KindInvalidArgument, op, fmt.Sprintf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return Input{}, shared.E(shared.KindInvalidArgument, op, "invalid achievement")
	}
	return input, nil
}

func (s *Service) changed(ctx context.Context) {
	for _, fn := range s.onChange {
		fn(ctx)
	}
}

func denied(op string) error {
	return shared.E(shared.KindUnauthorized, op, "permission denied")
}

// classify keeps domain errors and wraps everything else as a storage failure.
func classify(op string, err error) error {
	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, shared.ErrNotFound) {
		return shared.E(shared.KindNotFound, op, "achievement not found")
	}
	if errors.Is(err, shared.ErrInvalidState) {
		return &shared.Error{Kind: shared.KindInvalidState, Op: op, Msg: "achievement was modified concurrently", Err: err}
	}
	return shared.StorageFailure(op, err)
}
