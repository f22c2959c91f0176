package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/achievehub/achievehub/internal/achievement"
)

func TestListConditions(t *testing.T) {
	where, args := listConditions(achievement.ListFilter{})
	require.Equal(t, "WHERE is_active", where)
	require.Empty(t, args)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = listConditions(achievement.ListFilter{
		State:    achievement.StatePending,
		OwnerID:  7,
		Name:     "50%_off",
		Category: "Math",
		From:     from,
	})
	require.Equal(t, "WHERE is_active AND audit_state = $1 AND owner_id = $2 AND name ILIKE $3 AND lower(category) = lower($4) AND created_at >= $5", where)
	require.Equal(t, []interface{}{"PENDING", int64(7), `%50\%\_off%`, "Math", from}, args)
}

func TestDecidedState(t *testing.T) {
	state, err := decidedState("APPROVED")
	require.NoError(t, err)
	require.Equal(t, achievement.StateApproved, state)

	_, err = decidedState("MAYBE")
	require.Error(t, err)
}
