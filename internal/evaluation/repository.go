package evaluation

import "context"

// Repository persists evaluations. Lookups of missing rows return an error
// matching shared.ErrNotFound; soft-deleted rows are returned with Active
// false.
type Repository interface {
	// Create fails with shared.ErrInvalidState when the user already holds
	// an active evaluation of the achievement.
	Create(ctx context.Context, e Evaluation) (int64, error)
	GetByID(ctx context.Context, id int64) (Evaluation, error)
	// Update writes rating, comment, active flag and update time.
	Update(ctx context.Context, e Evaluation) error
	// ListByAchievement and ListByUser return active rows, newest first,
	// along with the total match count.
	ListByAchievement(ctx context.Context, achievementID int64, offset, limit int) ([]Evaluation, int, error)
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]Evaluation, int, error)
	// RatingCounts counts the active evaluations of an achievement per rating.
	RatingCounts(ctx context.Context, achievementID int64) (map[int]int, error)
}
