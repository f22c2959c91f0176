package achievement

import (
	"time"

	"github.com/achievehub/achievehub/internal/shared"
)

// AuditState is the review state of an achievement.
type AuditState string

const (
	// StatePending awaits review.
	StatePending AuditState = "PENDING"
	// StateApproved is published.
	StateApproved AuditState = "APPROVED"
	// StateRejected was declined and may be re-submitted.
	StateRejected AuditState = "REJECTED"
)

// Valid reports whether s is a declared state.
func (s AuditState) Valid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected:
		return true
	}
	return false
}

// Achievement is a user-submitted resource under review.
type Achievement struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Content    string     `json:"content,omitempty"`
	AuditState AuditState `json:"audit_state"`
	Active     bool       `json:"active"`
	AuditorID  int64      `json:"auditor_id,omitempty"`
	AuditedAt  time.Time  `json:"audited_at,omitempty"`
	// SubmittedAt is when the achievement last entered StatePending.
	SubmittedAt time.Time `json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Reviewable reports whether a decision may be recorded.
func (a Achievement) Reviewable() bool {
	return a.Active && a.AuditState == StatePending
}

// Input carries the caller-editable fields.
type Input struct {
	Name     string `json:"name" validate:"required,max=200"`
	Category string `json:"category" validate:"required,max=64"`
	Content  string `json:"content" validate:"max=20000"`
}

func (in Input) normalized() Input {
	return Input{
		Name:     shared.NormalizeText(in.Name),
		Category: shared.NormalizeText(in.Category),
		Content:  in.Content,
	}
}

// ListFilter narrows listings. Zero fields do not filter.
type ListFilter struct {
	Name     string
	Category string
	From     time.Time
	To       time.Time
	OwnerID  int64
	State    AuditState
	Page     int
	PageSize int
}

// ListResult is one page of achievements.
type ListResult struct {
	Items      []Achievement     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}
