package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/achievehub/achievehub/internal/rbac"
)

// Middleware attaches the actor of a valid bearer token to the request
// context. Requests without a valid token continue anonymously.
func Middleware(sessions *SessionStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrSessionNotFound) && logger != nil {
					logger.Warn("resolve session", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithActor(r.Context(), actor)))
		})
	}
}

// BearerToken extracts the token of an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
