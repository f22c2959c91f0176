// Package memory keeps achievements and their review log in process memory.
// It backs tests and the STORE_DRIVER=memory development mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/shared"
)

// Store implements achievement.Repository and approval.ReviewStore.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]achievement.Achievement
	records audit.RecordStore
}

// New builds a Store appending review records to records. A nil records
// store gets an audit.MemoryStore.
func New(records audit.RecordStore) *Store {
	if records == nil {
		records = audit.NewMemoryStore()
	}
	return &Store{rows: make(map[int64]achievement.Achievement), records: records}
}

// Records exposes the record store used for review commits.
func (s *Store) Records() audit.RecordStore {
	return s.records
}

// GetByID implements achievement.Repository.
func (s *Store) GetByID(ctx context.Context, id int64) (achievement.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return achievement.Achievement{}, fmt.Errorf("memory: achievement %d: %w", id, shared.ErrNotFound)
	}
	return a, nil
}

// OwnerID implements rbac.OwnerLookup.
func (s *Store) OwnerID(ctx context.Context, id int64) (int64, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return a.OwnerID, nil
}

// Create implements achievement.Repository.
func (s *Store) Create(ctx context.Context, a achievement.Achievement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	s.rows[a.ID] = a
	return a.ID, nil
}

// Put stores a fully formed achievement, keeping its id. Used for seeding.
func (s *Store) Put(a achievement.Achievement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID > s.nextID {
		s.nextID = a.ID
	}
	s.rows[a.ID] = a
}

// Update implements achievement.Repository.
func (s *Store) Update(ctx context.Context, a achievement.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[a.ID]
	if !ok {
		return fmt.Errorf("memory: achievement %d: %w", a.ID, shared.ErrNotFound)
	}
	a.OwnerID = current.OwnerID
	a.CreatedAt = current.CreatedAt
	s.rows[a.ID] = a
	return nil
}

// List implements achievement.Repository.
func (s *Store) List(ctx context.Context, filter achievement.ListFilter) ([]achievement.Achievement, int, error) {
	s.mu.Lock()
	matched := make([]achievement.Achievement, 0, len(s.rows))
	for _, a := range s.rows {
		if matches(a, filter) {
			matched = append(matched, a)
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
	offset := shared.Offset(filter.Page, filter.PageSize)
	if offset < 0 || offset >= total {
		return nil, total, nil
	}
	_, size := shared.ClampPage(filter.Page, filter.PageSize)
	end := total
	if size < end-offset {
		end = offset + size
	}
	return matched[offset:end], total, nil
}

// CountPending implements achievement.Repository.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.rows {
		if a.Reviewable() {
			n++
		}
	}
	return n, nil
}

// CommitDecision applies the decision in rec to a pending achievement and
// appends rec. If the append fails the state change is undone.
func (s *Store) CommitDecision(ctx context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[rec.AchievementID]
	if !ok || !current.Active {
		return fmt.Errorf("memory: achievement %d: %w", rec.AchievementID, shared.ErrNotFound)
	}
	if current.AuditState != achievement.StatePending {
		return fmt.Errorf("memory: achievement %d is %s: %w", rec.AchievementID, current.AuditState, shared.ErrInvalidState)
	}
	next := current
	switch rec.Decision {
	case audit.DecisionApproved:
		next.AuditState = achievement.StateApproved
	case audit.DecisionRejected:
		next.AuditState = achievement.StateRejected
	default:
		return audit.ErrInvalidRecord
	}
	next.AuditorID = rec.AuditorID
	next.AuditedAt = rec.DecidedAt
	next.UpdatedAt = rec.DecidedAt
	s.rows[rec.AchievementID] = next
	if err := s.records.Insert(ctx, rec); err != nil {
		s.rows[rec.AchievementID] = current
		return fmt.Errorf("memory: append review record: %w", err)
	}
	return nil
}

func matches(a achievement.Achievement, f achievement.ListFilter) bool {
	if !a.Active {
		return false
	}
	if f.State != "" && a.AuditState != f.State {
		return false
	}
	if f.OwnerID != 0 && a.OwnerID != f.OwnerID {
		return false
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(a.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(a.Category, f.Category) {
		return false
	}
	if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.CreatedAt.After(f.To) {
		return false
	}
	return true
}
