package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/achievehub/achievehub/internal/jobs"
)

// BatchApprover is the slice of the review workflow the job needs.
type BatchApprover interface {
	BatchApprove(ctx context.Context, ids []int64, auditorID int64) int
}

// BatchApprovalJob processes TaskApprovalBatch tasks.
type BatchApprovalJob struct {
	Workflow BatchApprover
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewBatchApprovalJob wires dependencies for the batch approval handler.
func NewBatchApprovalJob(workflow BatchApprover, logger *slog.Logger, metrics *jobmetrics.Metrics) *BatchApprovalJob {
	return &BatchApprovalJob{Workflow: workflow, Logger: logger, Metrics: metrics}
}

// Handle processes one batch approval task.
func (j *BatchApprovalJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Workflow == nil {
		return errors.New("approval batch: handler not configured")
	}
	var payload BatchApprovePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.IDs) == 0 || payload.AuditorID == 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskApprovalBatch)
	succeeded := j.Workflow.BatchApprove(ctx, payload.IDs, payload.AuditorID)
	failed := uniqueCount(payload.IDs) - succeeded
	j.Metrics.AddBatchItems(TaskApprovalBatch, succeeded, failed)

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("approval batch processed",
		slog.Int64("auditor_id", payload.AuditorID),
		slog.Int("requested", len(payload.IDs)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed))
	return tracker.End(ctx.Err())
}

func uniqueCount(ids []int64) int {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
