package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/achievehub/achievehub/internal/evaluation"
	"github.com/achievehub/achievehub/internal/shared"
)

func TestEvaluationStoreOneActivePerUser(t *testing.T) {
	s := NewEvaluationStore()
	ctx := context.Background()
	first := evaluation.Evaluation{AchievementID: 1, UserID: 7, Rating: 4, Active: true, CreatedAt: day}

	id, err := s.Create(ctx, first)
	require.NoError(t, err)
	_, err = s.Create(ctx, first)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	other := first
	other.AchievementID = 2
	_, err = s.Create(ctx, other)
	require.NoError(t, err)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	got.Active = false
	got.UpdatedAt = day.Add(time.Hour)
	require.NoError(t, s.Update(ctx, got))

	_, err = s.Create(ctx, first)
	require.NoError(t, err, "a deleted evaluation frees the slot")

	require.ErrorIs(t, s.Update(ctx, evaluation.Evaluation{ID: 99}), shared.ErrNotFound)
	_, err = s.GetByID(ctx, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEvaluationStoreListsNewestFirst(t *testing.T) {
	s := NewEvaluationStore()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.Create(ctx, evaluation.Evaluation{
			AchievementID: 1, UserID: int64(10 + i), Rating: i + 1, Active: true,
			CreatedAt: day.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, evaluation.Evaluation{AchievementID: 2, UserID: 10, Rating: 5, Active: true, CreatedAt: day})
	require.NoError(t, err)

	items, total, err := s.ListByAchievement(ctx, 1, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, items, 2)
	require.Equal(t, int64(13), items[0].UserID)
	require.Equal(t, int64(12), items[1].UserID)

	items, total, err = s.ListByUser(ctx, 10, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items, 2)

	for _, offset := range []int{-1, 4, math.MaxInt} {
		items, total, err = s.ListByAchievement(ctx, 1, offset, math.MaxInt)
		require.NoError(t, err)
		require.Equal(t, 4, total)
		require.Empty(t, items)
	}

	counts, err := s.RatingCounts(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, map[int]int{1: 1, 2: 1, 3: 1, 4: 1}, counts)
}
