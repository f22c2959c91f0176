package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamesAreOrdered(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_init.sql", names[0])
	require.IsNonDecreasing(t, names)
}

func TestEvaluationsMigrationFollowsInit(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Contains(t, names, "0002_evaluations.sql")
	body, err := files.ReadFile("0002_evaluations.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "WHERE is_active")
}
