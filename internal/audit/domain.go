package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome recorded by a review.
type Decision string

const (
	// DecisionApproved marks an approval.
	DecisionApproved Decision = "APPROVED"
	// DecisionRejected marks a rejection.
	DecisionRejected Decision = "REJECTED"
)

// Record is an immutable review fact. Once appended it is never updated or
// removed.
type Record struct {
	ID            uuid.UUID `json:"id"`
	AchievementID int64     `json:"achievement_id"`
	AuditorID     int64     `json:"auditor_id"`
	Decision      Decision  `json:"decision"`
	Comment       string    `json:"comment"`
	DecidedAt     time.Time `json:"decided_at"`
	// SubmittedAt is when the achievement last entered review; DecidedAt minus
	// SubmittedAt is the processing time.
	SubmittedAt time.Time `json:"submitted_at"`
}

// ErrInvalidRecord is returned for records that may not be appended.
var ErrInvalidRecord = errors.New("audit: invalid record")

// Validate checks the append preconditions of a record.
func (r Record) Validate() error {
	if r.ID == uuid.Nil || r.AchievementID == 0 || r.AuditorID == 0 || r.DecidedAt.IsZero() {
		return ErrInvalidRecord
	}
	switch r.Decision {
	case DecisionApproved:
	case DecisionRejected:
		if r.Comment == "" {
			return ErrInvalidRecord
		}
	default:
		return ErrInvalidRecord
	}
	return nil
}

// ProcessingTime returns the time the achievement waited for this decision.
func (r Record) ProcessingTime() time.Duration {
	if r.SubmittedAt.IsZero() || r.DecidedAt.Before(r.SubmittedAt) {
		return 0
	}
	return r.DecidedAt.Sub(r.SubmittedAt)
}

// Window bounds aggregate queries by decision time. Zero fields are open.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window, From inclusive and To
// exclusive.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// PagingInfo stores simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Page is one page of records, newest first.
type Page struct {
	Records []Record   `json:"records"`
	Paging  PagingInfo `json:"paging"`
}
