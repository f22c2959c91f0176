package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/achievehub/achievehub/internal/audit"
)

const recordColumns = `id, achievement_id, auditor_id, decision, comment, submitted_at, decided_at`

// Insert appends rec outside of a decision. Most callers go through
// CommitDecision instead.
func (s *Store) Insert(ctx context.Context, rec audit.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return insertRecord(ctx, s.db, rec)
}

func insertRecord(ctx context.Context, q dbtx, rec audit.Record) error {
	_, err := q.Exec(ctx, `
		INSERT INTO achievement_audit_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.AchievementID, rec.AuditorID, string(rec.Decision), rec.Comment,
		nullableTime(rec.SubmittedAt), rec.DecidedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert review record: %w", err)
	}
	return nil
}

// QueryByAchievement returns the records of one achievement, oldest first.
func (s *Store) QueryByAchievement(ctx context.Context, achievementID int64) ([]audit.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+`
		FROM achievement_audit_records
		WHERE achievement_id = $1
		ORDER BY decided_at ASC, id ASC`, achievementID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query achievement history: %w", err)
	}
	return collectRecords(rows)
}

// QueryByAuditor returns the records decided by one auditor, newest first.
func (s *Store) QueryByAuditor(ctx context.Context, auditorID int64, offset, limit int) ([]audit.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+`
		FROM achievement_audit_records
		WHERE auditor_id = $1
		ORDER BY decided_at DESC, id DESC
		LIMIT $2 OFFSET $3`, auditorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: query reviewer history: %w", err)
	}
	return collectRecords(rows)
}

// CountApprovedSince counts approvals decided at or after since.
func (s *Store) CountApprovedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM achievement_audit_records
		WHERE decision = $1 AND decided_at >= $2`,
		string(audit.DecisionApproved), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count approvals: %w", err)
	}
	return n, nil
}

// AverageProcessingHours averages decided_at minus submitted_at over the
// window. Records without a submission time count as zero.
func (s *Store) AverageProcessingHours(ctx context.Context, window audit.Window) (float64, error) {
	var hours float64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(GREATEST(EXTRACT(EPOCH FROM (decided_at - COALESCE(submitted_at, decided_at))), 0)) / 3600.0, 0)::float8
		FROM achievement_audit_records
		WHERE ($1::timestamptz IS NULL OR decided_at >= $1)
		  AND ($2::timestamptz IS NULL OR decided_at < $2)`,
		nullableTime(window.From), nullableTime(window.To)).Scan(&hours)
	if err != nil {
		return 0, fmt.Errorf("postgres: average processing time: %w", err)
	}
	return hours, nil
}

// RejectionRate is rejected / (approved + rejected) over the window.
func (s *Store) RejectionRate(ctx context.Context, window audit.Window) (float64, error) {
	var rate float64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(COUNT(*) FILTER (WHERE decision = $3)::float8 / NULLIF(COUNT(*), 0), 0)::float8
		FROM achievement_audit_records
		WHERE ($1::timestamptz IS NULL OR decided_at >= $1)
		  AND ($2::timestamptz IS NULL OR decided_at < $2)`,
		nullableTime(window.From), nullableTime(window.To), string(audit.DecisionRejected)).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("postgres: rejection rate: %w", err)
	}
	return rate, nil
}

func collectRecords(rows pgx.Rows) ([]audit.Record, error) {
	defer rows.Close()
	var out []audit.Record
	for rows.Next() {
		var (
			rec         audit.Record
			decision    string
			submittedAt *time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.AchievementID, &rec.AuditorID, &decision, &rec.Comment, &submittedAt, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan review record: %w", err)
		}
		rec.Decision = audit.Decision(decision)
		if submittedAt != nil {
			rec.SubmittedAt = *submittedAt
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read review records: %w", err)
	}
	return out, nil
}
