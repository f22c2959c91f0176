package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/evaluation"
	"github.com/achievehub/achievehub/internal/shared"
	"github.com/achievehub/achievehub/migrations"
)

// StoreIntegrationSuite runs the store against a disposable PostgreSQL.
type StoreIntegrationSuite struct {
	suite.Suite
	ctx     context.Context
	pool    *pgxpool.Pool
	store   *Store
	ownerID int64
	auditor int64
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(StoreIntegrationSuite))
}

func (s *StoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	ctr, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("achievehub"),
		tcpostgres.WithUsername("achievehub"),
		tcpostgres.WithPassword("achievehub"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(s.T(), ctr)
	s.Require().NoError(err)

	dsn, err := ctr.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.pool, err = pgxpool.New(s.ctx, dsn)
	s.Require().NoError(err)
	s.T().Cleanup(s.pool.Close)

	applied, err := migrations.Apply(s.ctx, s.pool)
	s.Require().NoError(err)
	s.Require().NotEmpty(applied)
	again, err := migrations.Apply(s.ctx, s.pool)
	s.Require().NoError(err)
	s.Require().Empty(again)

	s.store = New(s.pool)
	s.Require().NoError(s.pool.QueryRow(s.ctx,
		`INSERT INTO users (email, password_hash, authorities) VALUES ('owner@example.com', 'x', '{ROLE_1}') RETURNING id`).Scan(&s.ownerID))
	s.Require().NoError(s.pool.QueryRow(s.ctx,
		`INSERT INTO users (email, password_hash, authorities) VALUES ('auditor@example.com', 'x', '{ROLE_2}') RETURNING id`).Scan(&s.auditor))
}

func (s *StoreIntegrationSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE achievement_evaluations, achievement_audit_records, achievements RESTART IDENTITY`)
	s.Require().NoError(err)
}

func (s *StoreIntegrationSuite) create(name string) achievement.Achievement {
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := achievement.Achievement{
		OwnerID: s.ownerID, Name: name, Category: "science",
		AuditState: achievement.StatePending, Active: true,
		SubmittedAt: now.Add(-3 * time.Hour), CreatedAt: now, UpdatedAt: now,
	}
	id, err := s.store.Create(s.ctx, a)
	s.Require().NoError(err)
	a.ID = id
	return a
}

func (s *StoreIntegrationSuite) record(id int64, decision audit.Decision, comment string) audit.Record {
	return audit.Record{
		ID:            uuid.New(),
		AchievementID: id,
		AuditorID:     s.auditor,
		Decision:      decision,
		Comment:       comment,
		SubmittedAt:   time.Now().UTC().Add(-3 * time.Hour),
		DecidedAt:     time.Now().UTC(),
	}
}

func (s *StoreIntegrationSuite) TestCreateGetUpdateList() {
	a := s.create("Science Fair 50%")
	got, err := s.store.GetByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.Name, got.Name)
	s.Zero(got.AuditorID)

	owner, err := s.store.OwnerID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(s.ownerID, owner)

	items, total, err := s.store.List(s.ctx, achievement.ListFilter{Name: "fair 50%", Category: "SCIENCE"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(items, 1)

	got.Active = false
	s.Require().NoError(s.store.Update(s.ctx, got))
	_, total, err = s.store.List(s.ctx, achievement.ListFilter{})
	s.Require().NoError(err)
	s.Zero(total)

	_, err = s.store.GetByID(s.ctx, 999)
	s.True(errors.Is(err, shared.ErrNotFound))
}

func (s *StoreIntegrationSuite) TestCommitDecision() {
	a := s.create("Robotics")
	s.Require().NoError(s.store.CommitDecision(s.ctx, s.record(a.ID, audit.DecisionRejected, "blurry scan")))

	got, err := s.store.GetByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(achievement.StateRejected, got.AuditState)
	s.Equal(s.auditor, got.AuditorID)

	err = s.store.CommitDecision(s.ctx, s.record(a.ID, audit.DecisionApproved, "approved"))
	s.True(errors.Is(err, shared.ErrInvalidState))

	err = s.store.CommitDecision(s.ctx, s.record(12345, audit.DecisionApproved, "approved"))
	s.True(errors.Is(err, shared.ErrNotFound))

	history, err := s.store.QueryByAchievement(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
	s.Equal("blurry scan", history[0].Comment)

	pending, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *StoreIntegrationSuite) TestConcurrentDecisionsCommitOnce() {
	a := s.create("Contested")
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, comment := audit.DecisionApproved, "approved"
			if i%2 == 1 {
				decision, comment = audit.DecisionRejected, "duplicate"
			}
			errs[i] = s.store.CommitDecision(s.ctx, s.record(a.ID, decision, comment))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.True(errors.Is(err, shared.ErrInvalidState), err)
	}
	s.Equal(1, wins)
	history, err := s.store.QueryByAchievement(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *StoreIntegrationSuite) TestAggregates() {
	for i, decision := range []audit.Decision{audit.DecisionApproved, audit.DecisionApproved, audit.DecisionRejected} {
		a := s.create("entry")
		comment := "approved"
		if decision == audit.DecisionRejected {
			comment = "incomplete"
		}
		rec := s.record(a.ID, decision, comment)
		rec.SubmittedAt = rec.DecidedAt.Add(-time.Duration(i+1) * time.Hour)
		s.Require().NoError(s.store.CommitDecision(s.ctx, rec))
	}

	approved, err := s.store.CountApprovedSince(s.ctx, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(2, approved)

	hours, err := s.store.AverageProcessingHours(s.ctx, audit.Window{})
	s.Require().NoError(err)
	s.InDelta(2.0, hours, 0.01)

	rate, err := s.store.RejectionRate(s.ctx, audit.Window{})
	s.Require().NoError(err)
	s.InDelta(1.0/3.0, rate, 0.0001)

	rate, err = s.store.RejectionRate(s.ctx, audit.Window{From: time.Now().Add(time.Hour)})
	s.Require().NoError(err)
	s.Zero(rate)

	page, err := s.store.QueryByAuditor(s.ctx, s.auditor, 0, 2)
	s.Require().NoError(err)
	s.Len(page, 2)
	s.False(page[0].DecidedAt.Before(page[1].DecidedAt))
}

func (s *StoreIntegrationSuite) TestEvaluations() {
	a := s.create("Debate")
	evals := NewEvaluationStore(s.pool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := evaluation.Evaluation{
		AchievementID: a.ID, UserID: s.auditor, Rating: 4, Comment: "x\u00b2 ok",
		Active: true, CreatedAt: now, UpdatedAt: now,
	}
	id, err := evals.Create(s.ctx, e)
	s.Require().NoError(err)

	_, err = evals.Create(s.ctx, e)
	s.True(errors.Is(err, shared.ErrInvalidState), err)

	mine := e
	mine.UserID = s.ownerID
	mine.Rating = 1
	mine.CreatedAt = now.Add(time.Minute)
	_, err = evals.Create(s.ctx, mine)
	s.Require().NoError(err)

	items, total, err := evals.ListByAchievement(s.ctx, a.ID, 0, 10)
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(items, 2)
	s.Equal(s.ownerID, items[0].UserID)

	items, total, err = evals.ListByAchievement(s.ctx, a.ID, 5, 10)
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Empty(items)

	counts, err := evals.RatingCounts(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(map[int]int{1: 1, 4: 1}, counts)

	got, err := evals.GetByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("x\u00b2 ok", got.Comment)
	got.Active = false
	s.Require().NoError(evals.Update(s.ctx, got))

	_, total, err = evals.ListByUser(s.ctx, s.auditor, 0, 10)
	s.Require().NoError(err)
	s.Zero(total)
	_, err = evals.Create(s.ctx, e)
	s.Require().NoError(err)

	_, err = evals.GetByID(s.ctx, 999)
	s.True(errors.Is(err, shared.ErrNotFound))
}
