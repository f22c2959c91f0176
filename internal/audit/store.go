package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RecordStore persists review records.
type RecordStore interface {
	Insert(ctx context.Context, rec Record) error
	// QueryByAchievement returns records oldest first.
	QueryByAchievement(ctx context.Context, achievementID int64) ([]Record, error)
	// QueryByAuditor returns records newest first.
	QueryByAuditor(ctx context.Context, auditorID int64, offset, limit int) ([]Record, error)
	CountApprovedSince(ctx context.Context, since time.Time) (int, error)
	// AverageProcessingHours and RejectionRate return 0 for an empty window.
	AverageProcessingHours(ctx context.Context, window Window) (float64, error)
	RejectionRate(ctx context.Context, window Window) (float64, error)
}

// MemoryStore is an append-only RecordStore kept in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends rec.
func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// QueryByAchievement implements RecordStore.
func (s *MemoryStore) QueryByAchievement(ctx context.Context, achievementID int64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.AchievementID == achievementID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	return out, nil
}

// QueryByAuditor implements RecordStore.
func (s *MemoryStore) QueryByAuditor(ctx context.Context, auditorID int64, offset, limit int) ([]Record, error) {
	s.mu.RLock()
	var matched []Record
	for _, rec := range s.records {
		if rec.AuditorID == auditorID {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].DecidedAt.After(matched[j].DecidedAt) })
	if offset < 0 || offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return matched[offset:end], nil
}

// CountApprovedSince implements RecordStore.
func (s *MemoryStore) CountApprovedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if rec.Decision == DecisionApproved && !rec.DecidedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// AverageProcessingHours implements RecordStore.
func (s *MemoryStore) AverageProcessingHours(ctx context.Context, window Window) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total time.Duration
	n := 0
	for _, rec := range s.records {
		if !window.Contains(rec.DecidedAt) {
			continue
		}
		total += rec.ProcessingTime()
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return total.Hours() / float64(n), nil
}

// RejectionRate implements RecordStore.
func (s *MemoryStore) RejectionRate(ctx context.Context, window Window) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var approved, rejected int
	for _, rec := range s.records {
		if !window.Contains(rec.DecidedAt) {
			continue
		}
		switch rec.Decision {
		case DecisionApproved:
			approved++
		case DecisionRejected:
			rejected++
		}
	}
	if approved+rejected == 0 {
		return 0, nil
	}
	return float64(rejected) / float64(approved+rejected), nil
}

// Len reports how many records were appended.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
