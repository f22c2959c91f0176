package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/achievehub/achievehub/internal/platform/httpx"
	"github.com/achievehub/achievehub/internal/rbac"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers review history and CSV export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rbac.RateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "rate_limited", "Too Many Requests", "too many export requests")
		}),
	)
	r.With(h.rbac.RequireAuthenticated).Get("/{id}/history", h.handleHistory)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(rbac.PermApprove))
		gr.Get("/mine", h.handleMine)
		gr.With(limiter).Get("/mine/export.csv", h.handleExport)
	})
}
