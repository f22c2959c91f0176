package approvalhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/achievehub/achievehub/internal/platform/httpx"
	"github.com/achievehub/achievehub/internal/rbac"
)

const batchRateLimit = 10
const batchRateWindow = time.Minute

// MountRoutes registers review endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(batchRateLimit, batchRateWindow,
		httprate.WithKeyFuncs(rbac.RateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "rate_limited", "Too Many Requests", "too many batch requests")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermApprove))
		r.Get("/pending", h.listPending)
		r.Get("/statistics", h.statistics)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
		r.With(limiter).Post("/batch-approve", h.batchApprove)
	})
}
