package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/achievehub/achievehub/internal/evaluation"
	"github.com/achievehub/achievehub/internal/shared"
)

// EvaluationStore implements evaluation.Repository.
type EvaluationStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]evaluation.Evaluation
}

// NewEvaluationStore builds an empty EvaluationStore.
func NewEvaluationStore() *EvaluationStore {
	return &EvaluationStore{rows: make(map[int64]evaluation.Evaluation)}
}

// Create implements evaluation.Repository.
func (s *EvaluationStore) Create(ctx context.Context, e evaluation.Evaluation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.Active && existing.AchievementID == e.AchievementID && existing.UserID == e.UserID {
			return 0, fmt.Errorf("memory: user %d already evaluated achievement %d: %w", e.UserID, e.AchievementID, shared.ErrInvalidState)
		}
	}
	s.nextID++
	e.ID = s.nextID
	s.rows[e.ID] = e
	return e.ID, nil
}

// GetByID implements evaluation.Repository.
func (s *EvaluationStore) GetByID(ctx context.Context, id int64) (evaluation.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok {
		return evaluation.Evaluation{}, fmt.Errorf("memory: evaluation %d: %w", id, shared.ErrNotFound)
	}
	return e, nil
}

// Update implements evaluation.Repository.
func (s *EvaluationStore) Update(ctx context.Context, e evaluation.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[e.ID]
	if !ok {
		return fmt.Errorf("memory: evaluation %d: %w", e.ID, shared.ErrNotFound)
	}
	current.Rating = e.Rating
	current.Comment = e.Comment
	current.Active = e.Active
	current.UpdatedAt = e.UpdatedAt
	s.rows[e.ID] = current
	return nil
}

// ListByAchievement implements evaluation.Repository.
func (s *EvaluationStore) ListByAchievement(ctx context.Context, achievementID int64, offset, limit int) ([]evaluation.Evaluation, int, error) {
	items, total := s.list(func(e evaluation.Evaluation) bool { return e.AchievementID == achievementID }, offset, limit)
	return items, total, nil
}

// ListByUser implements evaluation.Repository.
func (s *EvaluationStore) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]evaluation.Evaluation, int, error) {
	items, total := s.list(func(e evaluation.Evaluation) bool { return e.UserID == userID }, offset, limit)
	return items, total, nil
}

// RatingCounts implements evaluation.Repository.
func (s *EvaluationStore) RatingCounts(ctx context.Context, achievementID int64) (map[int]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int]int)
	for _, e := range s.rows {
		if e.Active && e.AchievementID == achievementID {
			counts[e.Rating]++
		}
	}
	return counts, nil
}

func (s *EvaluationStore) list(keep func(evaluation.Evaluation) bool, offset, limit int) ([]evaluation.Evaluation, int) {
	s.mu.Lock()
	matched := make([]evaluation.Evaluation, 0)
	for _, e := range s.rows {
		if e.Active && keep(e) {
			matched = append(matched, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if offset < 0 || offset >= total {
		return nil, total
	}
	end := total
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return matched[offset:end], total
}
