package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/achievehub/achievehub/internal/shared"
)

func TestIDParam(t *testing.T) {
	withID := func(v string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", v)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	id, err := IDParam(withID("42"), "id")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := IDParam(withID(bad), "id")
		require.ErrorIs(t, err, shared.ErrInvalidArgument)
	}
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&size=x&from=2024-02-01&to=2024-02-03", nil)
	require.Equal(t, 3, QueryInt(req, "page", 1))
	require.Equal(t, 20, QueryInt(req, "size", 20))
	require.Equal(t, 7, QueryInt(req, "missing", 7))

	from, err := QueryDate(req, "from", false)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), from)
	to, err := QueryDate(req, "to", true)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 3, 23, 59, 59, 999999999, time.UTC), to)

	bad := httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil)
	_, err = QueryDate(bad, "from", false)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}
