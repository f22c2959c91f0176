// Package evaluation lets readers rate and comment on published
// achievements.
package evaluation

import (
	"math"
	"time"

	"github.com/achievehub/achievehub/internal/shared"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Evaluation is one reader's rating and comment on an achievement. A user
// holds at most one active evaluation per achievement.
type Evaluation struct {
	ID            int64     `json:"id"`
	AchievementID int64     `json:"achievement_id"`
	UserID        int64     `json:"user_id"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment"`
	Active        bool      `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Input carries the caller-editable fields. The comment is stored as written.
type Input struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// ListResult is one page of evaluations. AverageRating is only set on
// per-achievement listings.
type ListResult struct {
	Items         []Evaluation      `json:"items"`
	Pagination    shared.Pagination `json:"pagination"`
	AverageRating float64           `json:"average_rating,omitempty"`
}

// Summary aggregates the active ratings of one achievement.
type Summary struct {
	AchievementID int64       `json:"achievement_id"`
	TotalCount    int         `json:"total_count"`
	AverageRating float64     `json:"average_rating"`
	Distribution  map[int]int `json:"rating_distribution"`
}

// Summarize builds a Summary from per-rating counts. Every rating from
// MinRating to MaxRating is present in the distribution; the average is
// rounded to one decimal and 0 when nothing was rated.
func Summarize(achievementID int64, counts map[int]int) Summary {
	dist := make(map[int]int, MaxRating)
	total, sum := 0, 0
	for r := MinRating; r <= MaxRating; r++ {
		n := counts[r]
		dist[r] = n
		total += n
		sum += n * r
	}
	avg := 0.0
	if total > 0 {
		avg = math.Round(float64(sum)/float64(total)*10) / 10
	}
	return Summary{AchievementID: achievementID, TotalCount: total, AverageRating: avg, Distribution: dist}
}
