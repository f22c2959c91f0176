// Package postgres persists achievements and review records in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/platform/db"
	"github.com/achievehub/achievehub/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements the achievement repository, the review store and
// audit.RecordStore on one pool.
type Store struct {
	db   dbtx
	pool db.Beginner
}

// New constructs a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

const achievementColumns = `id, owner_id, name, category, content, audit_state, is_active,
	auditor_id, audited_at, submitted_at, created_at, updated_at`

// GetByID returns the achievement including soft-deleted rows.
func (s *Store) GetByID(ctx context.Context, id int64) (achievement.Achievement, error) {
	row := s.db.QueryRow(ctx, `SELECT `+achievementColumns+` FROM achievements WHERE id = $1`, id)
	a, err := scanAchievement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return achievement.Achievement{}, fmt.Errorf("postgres: achievement %d: %w", id, shared.ErrNotFound)
		}
		return achievement.Achievement{}, fmt.Errorf("postgres: get achievement: %w", err)
	}
	return a, nil
}

// OwnerID resolves the owner of an active achievement.
func (s *Store) OwnerID(ctx context.Context, id int64) (int64, error) {
	var owner int64
	err := s.db.QueryRow(ctx, `SELECT owner_id FROM achievements WHERE id = $1 AND is_active`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("postgres: achievement %d: %w", id, shared.ErrNotFound)
		}
		return 0, fmt.Errorf("postgres: owner lookup: %w", err)
	}
	return owner, nil
}

// Create inserts a and returns its id.
func (s *Store) Create(ctx context.Context, a achievement.Achievement) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO achievements (owner_id, name, category, content, audit_state, is_active,
			submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		a.OwnerID, a.Name, a.Category, a.Content, string(a.AuditState), a.Active,
		a.SubmittedAt, a.CreatedAt, a.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create achievement: %w", err)
	}
	return id, nil
}

// Update writes the mutable columns of a. The owner is never changed.
func (s *Store) Update(ctx context.Context, a achievement.Achievement) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE achievements
		SET name = $2, category = $3, content = $4, audit_state = $5, is_active = $6,
			auditor_id = $7, audited_at = $8, submitted_at = $9, updated_at = $10
		WHERE id = $1`,
		a.ID, a.Name, a.Category, a.Content, string(a.AuditState), a.Active,
		nullableID(a.AuditorID), nullableTime(a.AuditedAt), a.SubmittedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update achievement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: achievement %d: %w", a.ID, shared.ErrNotFound)
	}
	return nil
}

// List returns one page of active achievements matching filter, newest first,
// and the total number of matches.
func (s *Store) List(ctx context.Context, filter achievement.ListFilter) ([]achievement.Achievement, int, error) {
	where, args := listConditions(filter)

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM achievements "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count achievements: %w", err)
	}

	page, perPage := shared.ClampPage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM achievements %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		achievementColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, shared.Offset(page, perPage))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list achievements: %w", err)
	}
	defer rows.Close()

	var items []achievement.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: scan achievement: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: list achievements: %w", err)
	}
	return items, total, nil
}

// CountPending counts active achievements awaiting review.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM achievements WHERE is_active AND audit_state = $1`,
		string(achievement.StatePending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count pending: %w", err)
	}
	return n, nil
}

// CommitDecision moves a pending achievement to the decided state and appends
// rec in one transaction. The state change is a compare-and-set on
// audit_state, so a concurrent decision makes the loser fail with
// shared.ErrInvalidState.
func (s *Store) CommitDecision(ctx context.Context, rec audit.Record) error {
	next, err := decidedState(rec.Decision)
	if err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE achievements
			SET audit_state = $2, auditor_id = $3, audited_at = $4, updated_at = $4
			WHERE id = $1 AND is_active AND audit_state = $5`,
			rec.AchievementID, string(next), rec.AuditorID, rec.DecidedAt, string(achievement.StatePending))
		if err != nil {
			return fmt.Errorf("postgres: apply decision: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return explainMissedDecision(ctx, tx, rec.AchievementID)
		}
		return insertRecord(ctx, tx, rec)
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("postgres: achievement %d decided concurrently: %w", rec.AchievementID, shared.ErrInvalidState)
	}
	return err
}

func explainMissedDecision(ctx context.Context, tx pgx.Tx, id int64) error {
	var state string
	var active bool
	err := tx.QueryRow(ctx, `SELECT audit_state, is_active FROM achievements WHERE id = $1`, id).Scan(&state, &active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("postgres: achievement %d: %w", id, shared.ErrNotFound)
	case err != nil:
		return fmt.Errorf("postgres: load achievement state: %w", err)
	case !active:
		return fmt.Errorf("postgres: achievement %d: %w", id, shared.ErrNotFound)
	}
	return fmt.Errorf("postgres: achievement %d is %s: %w", id, state, shared.ErrInvalidState)
}

func decidedState(d audit.Decision) (achievement.AuditState, error) {
	switch d {
	case audit.DecisionApproved:
		return achievement.StateApproved, nil
	case audit.DecisionRejected:
		return achievement.StateRejected, nil
	}
	return "", audit.ErrInvalidRecord
}

// listConditions builds the WHERE clause shared by the count and page queries.
func listConditions(f achievement.ListFilter) (string, []interface{}) {
	conditions := []string{"is_active"}
	var args []interface{}
	add := func(format string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}
	if f.State != "" {
		add("audit_state = $%d", string(f.State))
	}
	if f.OwnerID != 0 {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.Name != "" {
		add("name ILIKE $%d", "%"+escapeLike(f.Name)+"%")
	}
	if f.Category != "" {
		add("lower(category) = lower($%d)", f.Category)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanAchievement(row pgx.Row) (achievement.Achievement, error) {
	var (
		a         achievement.Achievement
		state     string
		auditorID *int64
		auditedAt *time.Time
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Category, &a.Content, &state, &a.Active,
		&auditorID, &auditedAt, &a.SubmittedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return achievement.Achievement{}, err
	}
	a.AuditState = achievement.AuditState(state)
	if auditorID != nil {
		a.AuditorID = *auditorID
	}
	if auditedAt != nil {
		a.AuditedAt = *auditedAt
	}
	return a, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
