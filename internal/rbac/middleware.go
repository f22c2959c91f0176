package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/httprate"

	"github.com/achievehub/achievehub/internal/platform/httpx"
)

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
}

// RequireAuthenticated rejects anonymous requests.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActorFromContext(r.Context()).Authenticated {
			httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current actor holds at least one of the permissions.
// Ownership-scoped permissions cannot be decided here and must be checked by
// the handler against the concrete resource.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if !actor.Authenticated {
				httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "authentication required")
				return
			}
			for _, perm := range perms {
				if m.Evaluator.Evaluate(r.Context(), actor, perm, NoTarget) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied", slog.Int64("actor_id", actor.ID), slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "unauthorized", "Forbidden", "permission denied")
		})
	}
}

// RateLimitKey keys httprate limiters by actor, falling back to the client IP
// for anonymous requests.
func RateLimitKey(r *http.Request) (string, error) {
	if actor := ActorFromContext(r.Context()); actor.Authenticated {
		return "user:" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
