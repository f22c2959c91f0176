package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	achievementhttp "github.com/achievehub/achievehub/internal/achievement/http"
	approvalhttp "github.com/achievehub/achievehub/internal/approval/http"
	audithttp "github.com/achievehub/achievehub/internal/audit/http"
	"github.com/achievehub/achievehub/internal/auth"
	evaluationhttp "github.com/achievehub/achievehub/internal/evaluation/http"
	"github.com/achievehub/achievehub/internal/observability"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Sessions           *auth.SessionStore
	AuthHandler        *auth.Handler
	AchievementHandler *achievementhttp.Handler
	ApprovalHandler    *approvalhttp.Handler
	AuditHandler       *audithttp.Handler
	EvaluationHandler  *evaluationhttp.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with AchieveHub defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config != nil && !params.Config.IsProduction() && !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.AchievementHandler != nil {
			r.Route("/achievements", params.AchievementHandler.MountRoutes)
		}
		if params.EvaluationHandler != nil {
			r.Route("/evaluations", params.EvaluationHandler.MountRoutes)
		}
		r.Route("/approvals", func(r chi.Router) {
			params.ApprovalHandler.MountRoutes(r)
			params.AuditHandler.MountRoutes(r)
		})
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

// Routes builds the handlers for c and returns the router. enqueuer and
// inspector may be nil, which keeps batch approvals synchronous and hides
// the queue health endpoint.
func (c *Container) Routes(enqueuer approvalhttp.BatchEnqueuer, inspector jobs.QueueInspector) http.Handler {
	var approvalOpts []approvalhttp.Option
	if enqueuer != nil {
		approvalOpts = append(approvalOpts, approvalhttp.WithBatchEnqueuer(enqueuer, c.Config.ApprovalBatchSyncLimit))
	}
	params := RouterParams{
		Logger:             c.Logger,
		Config:             c.Config,
		Sessions:           c.Sessions,
		AuthHandler:        auth.NewHandler(c.Logger, c.Auth),
		AchievementHandler: achievementhttp.NewHandler(c.Logger, c.Achievements, c.RBAC),
		ApprovalHandler:    approvalhttp.NewHandler(c.Logger, c.Workflow, c.Achievements, c.Stats, c.RBAC, approvalOpts...),
		AuditHandler:       audithttp.NewHandler(c.Logger, c.Workflow, c.Backend, c.RBAC),
		EvaluationHandler:  evaluationhttp.NewHandler(c.Logger, c.Evaluations, c.RBAC),
		PermissionsHandler: rbac.NewPermissionsHandler(c.Evaluator, c.RBAC),
		Metrics:            c.Metrics,
	}
	if inspector != nil {
		params.JobHandler = jobs.NewHandler(inspector, c.Logger)
	}
	return NewRouter(params)
}
