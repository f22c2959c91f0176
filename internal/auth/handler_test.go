package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/achievehub/achievehub/internal/auth"
	"github.com/achievehub/achievehub/internal/rbac"
	_ "github.com/achievehub/achievehub/testing"
)

type env struct {
	mr       *miniredis.Miniredis
	sessions *auth.SessionStore
	router   chi.Router
}

func newEnv(t *testing.T) env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	repo := auth.NewMemoryRepository(
		auth.User{ID: 7, Email: "reviewer@example.com", PasswordHash: hash, Authorities: []string{"ROLE_2", "ROLE_9"}, IsActive: true},
		auth.User{ID: 8, Email: "gone@example.com", PasswordHash: hash, Authorities: []string{"ROLE_1"}, IsActive: false},
	)
	sessions := auth.NewSessionStore(client, time.Hour)
	handler := auth.NewHandler(nil, auth.NewService(repo, sessions))

	r := chi.NewRouter()
	r.Use(auth.Middleware(sessions, nil))
	r.Route("/auth", handler.MountRoutes)
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		actor := rbac.ActorFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{"id": actor.ID, "authenticated": actor.Authenticated})
	})
	return env{mr: mr, sessions: sessions, router: r}
}

func (e env) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestLoginIssuesBearerSession(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodPost, "/auth/login", `{"email":"Reviewer@example.com","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var session auth.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	require.Equal(t, int64(7), session.UserID)
	require.Equal(t, []string{"administrator"}, session.Roles)

	// the raw token never appears in redis
	for _, key := range e.mr.Keys() {
		require.NotContains(t, key, session.Token)
	}

	who := e.do(http.MethodGet, "/whoami", "", session.Token)
	require.JSONEq(t, `{"id":7,"authenticated":true}`, who.Body.String())

	actor, err := e.sessions.Resolve(context.Background(), session.Token)
	require.NoError(t, err)
	role, ok := actor.EffectiveRole()
	require.True(t, ok)
	require.Equal(t, rbac.RoleAdministrator, role)

	require.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/auth/logout", "", session.Token).Code)
	who = e.do(http.MethodGet, "/whoami", "", session.Token)
	require.JSONEq(t, `{"id":0,"authenticated":false}`, who.Body.String())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newEnv(t)
	cases := map[string]struct {
		body string
		code int
	}{
		"wrong password": {`{"email":"reviewer@example.com","password":"wrong-horse"}`, http.StatusUnauthorized},
		"unknown user":   {`{"email":"nobody@example.com","password":"correct-horse"}`, http.StatusUnauthorized},
		"inactive user":  {`{"email":"gone@example.com","password":"correct-horse"}`, http.StatusUnauthorized},
		"invalid email":  {`{"email":"nope","password":"correct-horse"}`, http.StatusBadRequest},
		"unknown field":  {`{"email":"reviewer@example.com","password":"correct-horse","admin":true}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.code, e.do(http.MethodPost, "/auth/login", tc.body, "").Code)
		})
	}
}

func TestSessionExpiry(t *testing.T) {
	e := newEnv(t)
	token, err := e.sessions.Issue(context.Background(), 3, []string{"ROLE_1"})
	require.NoError(t, err)

	_, err = e.sessions.Resolve(context.Background(), token)
	require.NoError(t, err)

	e.mr.FastForward(2 * time.Hour)
	_, err = e.sessions.Resolve(context.Background(), token)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	who := e.do(http.MethodGet, "/whoami", "", token)
	require.JSONEq(t, `{"id":0,"authenticated":false}`, who.Body.String())
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, auth.BearerToken(req))
	req.Header.Set("Authorization", "bearer abc ")
	require.Equal(t, "abc", auth.BearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, auth.BearerToken(req))
}
