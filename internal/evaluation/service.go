package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/shared"
)

// AchievementReader resolves an achievement the actor is allowed to see.
type AchievementReader interface {
	Get(ctx context.Context, actor rbac.Actor, id int64) (achievement.Achievement, error)
}

// Service manages ratings and comments.
type Service struct {
	repo         Repository
	achievements AchievementReader
	evaluator    *rbac.Evaluator
	validator    *validator.Validate
	logger       *slog.Logger
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

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

// NewService constructs the evaluation service.
func NewService(repo Repository, achievements AchievementReader, evaluator *rbac.Evaluator, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		achievements: achievements,
		evaluator:    evaluator,
		validator:    validator.New(),
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records the actor's evaluation of a published achievement.
func (s *Service) Submit(ctx context.Context, actor rbac.Actor, achievementID int64, input Input) (Evaluation, error) {
	const op = "evaluation.submit"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermRate, rbac.NoTarget) ||
		!s.evaluator.Evaluate(ctx, actor, rbac.PermComment, rbac.NoTarget) {
		return Evaluation{}, denied(op)
	}
	if err := s.validate(op, input); err != nil {
		return Evaluation{}, err
	}
	a, err := s.achievements.Get(ctx, actor, achievementID)
	if err != nil {
		return Evaluation{}, err
	}
	if a.AuditState != achievement.StateApproved {
		return Evaluation{}, shared.E(shared.KindInvalidState, op, "only published achievements can be evaluated")
	}
	now := s.now().UTC()
	e := Evaluation{
		AchievementID: achievementID,
		UserID:        actor.ID,
		Rating:        input.Rating,
		Comment:       input.Comment,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	id, err := s.repo.Create(ctx, e)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidState) {
			return Evaluation{}, &shared.Error{Kind: shared.KindInvalidState, Op: op, Msg: "achievement already evaluated", Err: err}
		}
		return Evaluation{}, classify(op, err)
	}
	e.ID = id
	s.logger.Info("achievement evaluated",
		slog.Int64("evaluation_id", id),
		slog.Int64("achievement_id", achievementID),
		slog.Int64("user_id", actor.ID),
		slog.Int("rating", e.Rating))
	return e, nil
}

// Update changes the rating and comment of the actor's own evaluation.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, input Input) (Evaluation, error) {
	const op = "evaluation.update"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermRate, rbac.NoTarget) {
		return Evaluation{}, denied(op)
	}
	if err := s.validate(op, input); err != nil {
		return Evaluation{}, err
	}
	current, err := s.load(ctx, op, id)
	if err != nil {
		return Evaluation{}, err
	}
	if current.UserID != actor.ID {
		return Evaluation{}, denied(op)
	}
	current.Rating = input.Rating
	current.Comment = input.Comment
	current.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, current); err != nil {
		return Evaluation{}, classify(op, err)
	}
	return current, nil
}

// Delete soft-deletes an evaluation. Authors may delete their own; holders
// of DELETE_ANY may delete any.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	const op = "evaluation.delete"
	if !actor.Authenticated {
		return denied(op)
	}
	current, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if current.UserID != actor.ID && !s.evaluator.Evaluate(ctx, actor, rbac.PermDeleteAny, rbac.NoTarget) {
		return denied(op)
	}
	current.Active = false
	current.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, current); err != nil {
		return classify(op, err)
	}
	return nil
}

// ListForAchievement pages through the evaluations of a visible achievement
// and reports its average rating.
func (s *Service) ListForAchievement(ctx context.Context, actor rbac.Actor, achievementID int64, page, pageSize int) (ListResult, error) {
	const op = "evaluation.list_achievement"
	if _, err := s.achievements.Get(ctx, actor, achievementID); err != nil {
		return ListResult{}, err
	}
	page, pageSize = shared.ClampPage(page, pageSize)
	items, total, err := s.repo.ListByAchievement(ctx, achievementID, shared.Offset(page, pageSize), pageSize)
	if err != nil {
		return ListResult{}, classify(op, err)
	}
	counts, err := s.repo.RatingCounts(ctx, achievementID)
	if err != nil {
		return ListResult{}, classify(op, err)
	}
	result := pageOf(items, page, pageSize, total)
	result.AverageRating = Summarize(achievementID, counts).AverageRating
	return result, nil
}

// ListMine pages through the actor's own evaluations.
func (s *Service) ListMine(ctx context.Context, actor rbac.Actor, page, pageSize int) (ListResult, error) {
	const op = "evaluation.list_mine"
	if !s.evaluator.Evaluate(ctx, actor, rbac.PermRead, rbac.NoTarget) {
		return ListResult{}, denied(op)
	}
	page, pageSize = shared.ClampPage(page, pageSize)
	items, total, err := s.repo.ListByUser(ctx, actor.ID, shared.Offset(page, pageSize), pageSize)
	if err != nil {
		return ListResult{}, classify(op, err)
	}
	return pageOf(items, page, pageSize, total), nil
}

// Summary reports the rating totals of a visible achievement.
func (s *Service) Summary(ctx context.Context, actor rbac.Actor, achievementID int64) (Summary, error) {
	const op = "evaluation.summary"
	if _, err := s.achievements.Get(ctx, actor, achievementID); err != nil {
		return Summary{}, err
	}
	counts, err := s.repo.RatingCounts(ctx, achievementID)
	if err != nil {
		return Summary{}, classify(op, err)
	}
	return Summarize(achievementID, counts), nil
}

func (s *Service) load(ctx context.Context, op string, id int64) (Evaluation, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Evaluation{}, classify(op, err)
	}
	if !e.Active {
		return Evaluation{}, shared.E(shared.KindNotFound, op, "evaluation not found")
	}
	return e, nil
}

func (s *Service) validate(op string, input Input) error {
	if err := s.validator.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return shared.E(shared.KindInvalidArgument, op, fmt.Sprintf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return shared.E(shared.KindInvalidArgument, op, "invalid evaluation")
	}
	return nil
}

func pageOf(items []Evaluation, page, pageSize, total int) ListResult {
	if items == nil {
		items = []Evaluation{}
	}
	return ListResult{Items: items, Pagination: shared.NewPagination(page, pageSize, total)}
}

func denied(op string) error {
	return shared.E(shared.KindUnauthorized, op, "permission denied")
}

func classify(op string, err error) error {
	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, shared.ErrNotFound) {
		return shared.E(shared.KindNotFound, op, "evaluation not found")
	}
	return shared.StorageFailure(op, err)
}
