package approvalhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/platform/httpx"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/stats"
	"github.com/achievehub/achievehub/jobs"
)

// DefaultBatchSyncLimit is the largest batch approved inside the request.
const DefaultBatchSyncLimit = 50

// IdempotencyHeader deduplicates queued batches.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKey = 128

type reviewService interface {
	Approve(ctx context.Context, id, auditorID int64) error
	Reject(ctx context.Context, id, auditorID int64, reason string) error
	BatchApprove(ctx context.Context, ids []int64, auditorID int64) int
}

type pendingLister interface {
	ListPending(ctx context.Context, actor rbac.Actor, filter achievement.ListFilter) (achievement.ListResult, error)
}

type statisticsView interface {
	GetStatistics(ctx context.Context) (stats.Statistics, error)
}

// BatchEnqueuer hands large batches to the worker.
type BatchEnqueuer interface {
	EnqueueBatchApprove(ctx context.Context, payload jobs.BatchApprovePayload) (string, error)
}

// Handler wires HTTP endpoints for reviewing achievements.
type Handler struct {
	logger    *slog.Logger
	service   reviewService
	pending   pendingLister
	stats     statisticsView
	enqueuer  BatchEnqueuer
	syncLimit int
	rbac      rbac.Middleware
	validator *validator.Validate
	now       func() time.Time
}

// Option customises a Handler.
type Option func(*Handler)

// WithBatchEnqueuer sends batches larger than syncLimit to the worker.
func WithBatchEnqueuer(enqueuer BatchEnqueuer, syncLimit int) Option {
	return func(h *Handler) {
		h.enqueuer = enqueuer
		if syncLimit > 0 {
			h.syncLimit = syncLimit
		}
	}
}

// NewHandler constructs a review HTTP handler.
func NewHandler(logger *slog.Logger, service reviewService, pending pendingLister, statsView statisticsView, rbac rbac.Middleware, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		pending:   pending,
		stats:     statsView,
		syncLimit: DefaultBatchSyncLimit,
		rbac:      rbac,
		validator: validator.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type batchRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,max=1000,dive,gt=0"`
}

type batchResponse struct {
	Requested int    `json:"requested"`
	Approved  int    `json:"approved"`
	Queued    bool   `json:"queued"`
	TaskID    string `json:"task_id,omitempty"`
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
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
	filter := achievement.ListFilter{
		Name:     q.Get("name"),
		Category: q.Get("category"),
		From:     from,
		To:       to,
		Page:     httpx.QueryInt(r, "page", 1),
		PageSize: httpx.QueryInt(r, "size", 0),
	}
	result, err := h.pending.ListPending(r.Context(), rbac.ActorFromContext(r.Context()), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := rbac.ActorFromContext(r.Context())
	if err := h.service.Approve(r.Context(), id, actor.ID); err != nil {
		h.logFailure("approve", id, actor.ID, err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "malformed request body")
		return
	}
	actor := rbac.ActorFromContext(r.Context())
	if err := h.service.Reject(r.Context(), id, actor.ID, req.Reason); err != nil {
		h.logFailure("reject", id, actor.ID, err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) batchApprove(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "ids must list between 1 and 1000 positive ids")
		return
	}
	actor := rbac.ActorFromContext(r.Context())
	if h.enqueuer != nil && len(req.IDs) > h.syncLimit {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if len(key) > maxIdempotencyKey {
			httpx.Problem(w, http.StatusBadRequest, "invalid_argument", "Bad Request", "idempotency key too long")
			return
		}
		taskID, err := h.enqueuer.EnqueueBatchApprove(r.Context(), jobs.BatchApprovePayload{
			IDs:         req.IDs,
			AuditorID:   actor.ID,
			RequestedAt: h.now().UTC(),
			RequestKey:  key,
		})
		if errors.Is(err, jobs.ErrDuplicateBatch) {
			httpx.Problem(w, http.StatusConflict, "invalid_state", "Conflict", "batch already queued")
			return
		}
		if err != nil {
			h.logger.Error("enqueue batch approval", slog.Int64("auditor_id", actor.ID), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "storage", "Service Unavailable", "batch could not be queued, please retry later")
			return
		}
		httpx.JSON(w, http.StatusAccepted, batchResponse{Requested: len(req.IDs), Queued: true, TaskID: taskID})
		return
	}
	approved := h.service.BatchApprove(r.Context(), req.IDs, actor.ID)
	httpx.JSON(w, http.StatusOK, batchResponse{Requested: len(req.IDs), Approved: approved})
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.GetStatistics(r.Context())
	if err != nil {
		h.logger.Error("load statistics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) logFailure(action string, id, auditorID int64, err error) {
	h.logger.Info("review rejected by workflow",
		slog.String("action", action),
		slog.Int64("achievement_id", id),
		slog.Int64("auditor_id", auditorID),
		slog.Any("error", err))
}
