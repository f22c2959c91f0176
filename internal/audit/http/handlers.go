package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/platform/httpx"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/shared"
)

// maxExportPages bounds a single CSV export.
const maxExportPages = 50

// HistoryService exposes the review trail.
type HistoryService interface {
	GetHistory(ctx context.Context, id int64) ([]audit.Record, error)
	GetReviewerHistory(ctx context.Context, auditorID int64, page, pageSize int) (audit.Page, error)
}

// Handler serves review history endpoints.
type Handler struct {
	logger  *slog.Logger
	service HistoryService
	owners  rbac.OwnerLookup
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds a review history handler. owners lets achievement owners
// read the history of their own submissions.
func NewHandler(logger *slog.Logger, service HistoryService, owners rbac.OwnerLookup, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		owners:  owners,
		rbac:    rbac,
		now:     time.Now,
	}
}

type historyResponse struct {
	AchievementID int64          `json:"achievement_id"`
	Records       []audit.Record `json:"records"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.mayReadHistory(r.Context(), rbac.ActorFromContext(r.Context()), id) {
		httpx.RespondError(w, shared.E(shared.KindNotFound, "audit.history", "achievement not found"))
		return
	}
	records, err := h.service.GetHistory(r.Context(), id)
	if err != nil {
		h.logger.Error("load review history", slog.Int64("achievement_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httpx.JSON(w, http.StatusOK, historyResponse{AchievementID: id, Records: records})
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	page, err := h.service.GetReviewerHistory(r.Context(), actor.ID,
		httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "size", shared.DefaultPageSize))
	if err != nil {
		h.logger.Error("load reviewer history", slog.Int64("auditor_id", actor.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	var records []audit.Record
	for page := 1; page <= maxExportPages; page++ {
		result, err := h.service.GetReviewerHistory(r.Context(), actor.ID, page, shared.MaxPageSize)
		if err != nil {
			h.logger.Error("export reviewer history", slog.Int64("auditor_id", actor.ID), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		records = append(records, result.Records...)
		if !result.Paging.HasNext {
			break
		}
	}
	filename := fmt.Sprintf("reviews-%d-%s.csv", actor.ID, h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := audit.WriteCSV(w, records); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) mayReadHistory(ctx context.Context, actor rbac.Actor, id int64) bool {
	if h.rbac.Evaluator.Evaluate(ctx, actor, rbac.PermApprove, rbac.NoTarget) {
		return true
	}
	if h.owners == nil {
		return false
	}
	owner, err := h.owners.OwnerID(ctx, id)
	return err == nil && owner == actor.ID
}
