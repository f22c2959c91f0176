package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/achievehub/achievehub/internal/evaluation"
	"github.com/achievehub/achievehub/internal/platform/db"
	"github.com/achievehub/achievehub/internal/shared"
)

// EvaluationStore implements evaluation.Repository.
type EvaluationStore struct {
	db dbtx
}

// NewEvaluationStore constructs an EvaluationStore backed by pool.
func NewEvaluationStore(pool *pgxpool.Pool) *EvaluationStore {
	return &EvaluationStore{db: pool}
}

const evaluationColumns = `id, achievement_id, user_id, rating, comment, is_active, created_at, updated_at`

// Create inserts e. The partial unique index on active rows rejects a second
// evaluation by the same user.
func (s *EvaluationStore) Create(ctx context.Context, e evaluation.Evaluation) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO achievement_evaluations (achievement_id, user_id, rating, comment, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.AchievementID, e.UserID, e.Rating, e.Comment, e.Active, e.CreatedAt, e.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if db.HasCode(err, db.CodeUniqueViolation) {
			return 0, fmt.Errorf("postgres: user %d already evaluated achievement %d: %w", e.UserID, e.AchievementID, shared.ErrInvalidState)
		}
		return 0, fmt.Errorf("postgres: create evaluation: %w", err)
	}
	return id, nil
}

// GetByID returns the evaluation including soft-deleted rows.
func (s *EvaluationStore) GetByID(ctx context.Context, id int64) (evaluation.Evaluation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+evaluationColumns+` FROM achievement_evaluations WHERE id = $1`, id)
	e, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return evaluation.Evaluation{}, fmt.Errorf("postgres: evaluation %d: %w", id, shared.ErrNotFound)
		}
		return evaluation.Evaluation{}, fmt.Errorf("postgres: get evaluation: %w", err)
	}
	return e, nil
}

// Update writes rating, comment, active flag and update time.
func (s *EvaluationStore) Update(ctx context.Context, e evaluation.Evaluation) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE achievement_evaluations
		SET rating = $2, comment = $3, is_active = $4, updated_at = $5
		WHERE id = $1`,
		e.ID, e.Rating, e.Comment, e.Active, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: evaluation %d: %w", e.ID, shared.ErrNotFound)
	}
	return nil
}

// ListByAchievement pages the active evaluations of one achievement.
func (s *EvaluationStore) ListByAchievement(ctx context.Context, achievementID int64, offset, limit int) ([]evaluation.Evaluation, int, error) {
	return s.list(ctx, "achievement_id", achievementID, offset, limit)
}

// ListByUser pages the active evaluations written by one user.
func (s *EvaluationStore) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]evaluation.Evaluation, int, error) {
	return s.list(ctx, "user_id", userID, offset, limit)
}

// RatingCounts counts active evaluations of an achievement per rating.
func (s *EvaluationStore) RatingCounts(ctx context.Context, achievementID int64) (map[int]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT rating, COUNT(*) FROM achievement_evaluations
		WHERE achievement_id = $1 AND is_active
		GROUP BY rating`, achievementID)
	if err != nil {
		return nil, fmt.Errorf("postgres: rating counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan rating count: %w", err)
		}
		counts[rating] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rating counts: %w", err)
	}
	return counts, nil
}

// list filters on column, which is always one of the constants above.
func (s *EvaluationStore) list(ctx context.Context, column string, value int64, offset, limit int) ([]evaluation.Evaluation, int, error) {
	where := fmt.Sprintf(`WHERE %s = $1 AND is_active`, column)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM achievement_evaluations `+where, value).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count evaluations: %w", err)
	}
	if offset < 0 || offset >= total {
		return nil, total, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+evaluationColumns+` FROM achievement_evaluations `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, value, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list evaluations: %w", err)
	}
	defer rows.Close()

	var items []evaluation.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: scan evaluation: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: list evaluations: %w", err)
	}
	return items, total, nil
}

func scanEvaluation(row pgx.Row) (evaluation.Evaluation, error) {
	var (
		e      evaluation.Evaluation
		rating int16
	)
	if err := row.Scan(&e.ID, &e.AchievementID, &e.UserID, &rating, &e.Comment, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return evaluation.Evaluation{}, err
	}
	e.Rating = int(rating)
	return e, nil
}
