package achievementhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/platform/httpx"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/shared"
)

// Service is the achievement use-case surface served over HTTP.
type Service interface {
	Submit(ctx context.Context, actor rbac.Actor, input achievement.Input) (achievement.Achievement, error)
	Update(ctx context.Context, actor rbac.Actor, id int64, input achievement.Input) (achievement.Achievement, error)
	Delete(ctx context.Context, actor rbac.Actor, id int64) error
	BatchDelete(ctx context.Context, actor rbac.Actor, ids []int64) (int, error)
	Get(ctx context.Context, actor rbac.Actor, id int64) (achievement.Achievement, error)
	Search(ctx context.Context, actor rbac.Actor, filter achievement.ListFilter) (achievement.ListResult, error)
	ListMine(ctx context.Context, actor rbac.Actor, page, pageSize int) (achievement.ListResult, error)
}

// Handler exposes achievement CRUD and listings.
type Handler struct {
	logger    *slog.Logger
	service   Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the achievement handler.
func NewHandler(logger *slog.Logger, service Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers achievement endpoints. Permission checks happen in
// the service because most of them depend on ownership.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/", h.search)
		r.Post("/", h.create)
		r.Get("/mine", h.listMine)
		r.Post("/batch-delete", h.batchDelete)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,max=1000,dive,gt=0"`
}

type batchDeleteResponse struct {
	Requested int `json:"requested"`
	Deleted   int `json:"deleted"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	from, err := httpx.QueryDate(r, "startDate", false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "endDate", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	result, err := h.service.Search(r.Context(), rbac.ActorFromContext(r.Context()), achievement.ListFilter{
		Name:     q.Get("name"),
		Category: q.Get("category"),
		From:     from,
		To:       to,
		Page:     httpx.QueryInt(r, "page", 1),
		PageSize: httpx.QueryInt(r, "size", shared.DefaultPageSize),
	})
	if err != nil {
		h.respond(w, "search achievements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListMine(r.Context(), rbac.ActorFromContext(r.Context()),
		httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "size", shared.DefaultPageSize))
	if err != nil {
		h.respond(w, "list own achievements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Get(r.Context(), rbac.ActorFromContext(r.Context()), id)
	if err != nil {
		h.respond(w, "get achievement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input achievement.Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "malformed request body")
		return
	}
	a, err := h.service.Submit(r.Context(), rbac.ActorFromContext(r.Context()), input)
	if err != nil {
		h.respond(w, "submit achievement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input achievement.Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "malformed request body")
		return
	}
	a, err := h.service.Update(r.Context(), rbac.ActorFromContext(r.Context()), id, input)
	if err != nil {
		h.respond(w, "update achievement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), rbac.ActorFromContext(r.Context()), id); err != nil {
		h.respond(w, "delete achievement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) batchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "ids must list between 1 and 1000 positive ids")
		return
	}
	deleted, err := h.service.BatchDelete(r.Context(), rbac.ActorFromContext(r.Context()), req.IDs)
	if err != nil {
		h.respond(w, "batch delete achievements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, batchDeleteResponse{Requested: len(req.IDs), Deleted: deleted})
}

func (h *Handler) respond(w http.ResponseWriter, action string, err error) {
	if shared.KindOf(err) == shared.KindStorage {
		h.logger.Error(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
