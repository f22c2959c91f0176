package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	serialization := fmt.Errorf("commit: %w", &pgconn.PgError{Code: CodeSerializationFailure})
	require.True(t, IsSerializationFailure(serialization))
	require.False(t, HasCode(serialization, CodeUniqueViolation))
	require.False(t, IsSerializationFailure(errors.New("plain")))
	require.False(t, IsSerializationFailure(nil))
}
