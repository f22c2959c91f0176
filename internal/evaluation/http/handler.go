package evaluationhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/achievehub/achievehub/internal/evaluation"
	"github.com/achievehub/achievehub/internal/platform/httpx"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/shared"
)

// Service is the evaluation use-case surface served over HTTP.
type Service interface {
	Submit(ctx context.Context, actor rbac.Actor, achievementID int64, input evaluation.Input) (evaluation.Evaluation, error)
	Update(ctx context.Context, actor rbac.Actor, id int64, input evaluation.Input) (evaluation.Evaluation, error)
	Delete(ctx context.Context, actor rbac.Actor, id int64) error
	ListForAchievement(ctx context.Context, actor rbac.Actor, achievementID int64, page, pageSize int) (evaluation.ListResult, error)
	ListMine(ctx context.Context, actor rbac.Actor, page, pageSize int) (evaluation.ListResult, error)
	Summary(ctx context.Context, actor rbac.Actor, achievementID int64) (evaluation.Summary, error)
}

// Handler exposes ratings and comments.
type Handler struct {
	logger  *slog.Logger
	service Service
	rbac    rbac.Middleware
}

// NewHandler constructs the evaluation handler.
func NewHandler(logger *slog.Logger, service Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers evaluation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Post("/", h.create)
		r.Get("/mine", h.listMine)
		r.Get("/achievement/{id}", h.listForAchievement)
		r.Get("/achievement/{id}/statistics", h.summary)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type createRequest struct {
	AchievementID int64 `json:"achievement_id"`
	evaluation.Input
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "malformed request body")
		return
	}
	if req.AchievementID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "achievement_id is required")
		return
	}
	e, err := h.service.Submit(r.Context(), rbac.ActorFromContext(r.Context()), req.AchievementID, req.Input)
	if err != nil {
		h.respond(w, "submit evaluation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input evaluation.Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "malformed request body")
		return
	}
	e, err := h.service.Update(r.Context(), rbac.ActorFromContext(r.Context()), id, input)
	if err != nil {
		h.respond(w, "update evaluation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), rbac.ActorFromContext(r.Context()), id); err != nil {
		h.respond(w, "delete evaluation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listForAchievement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ListForAchievement(r.Context(), rbac.ActorFromContext(r.Context()), id,
		httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "size", shared.DefaultPageSize))
	if err != nil {
		h.respond(w, "list achievement evaluations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListMine(r.Context(), rbac.ActorFromContext(r.Context()),
		httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "size", shared.DefaultPageSize))
	if err != nil {
		h.respond(w, "list own evaluations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.Summary(r.Context(), rbac.ActorFromContext(r.Context()), id)
	if err != nil {
		h.respond(w, "evaluation summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) respond(w http.ResponseWriter, action string, err error) {
	if shared.KindOf(err) == shared.KindStorage {
		h.logger.Error(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
