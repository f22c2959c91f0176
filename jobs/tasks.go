package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskApprovalBatch approves a large batch of achievements off the request path.
	TaskApprovalBatch = "approval:batch"
	// TaskStatsRefresh recomputes the cached review statistics.
	TaskStatsRefresh = "stats:refresh"
)

var (
	// ErrEmptyBatch is returned when a batch carries no ids.
	ErrEmptyBatch = errors.New("jobs: empty batch")
	// ErrDuplicateBatch is returned when a batch with the same request key is
	// already queued.
	ErrDuplicateBatch = errors.New("jobs: batch already queued")
)

// BatchApprovePayload describes an asynchronous batch approval. The caller
// was authorised when the task was enqueued.
type BatchApprovePayload struct {
	IDs         []int64   `json:"ids"`
	AuditorID   int64     `json:"auditor_id"`
	RequestedAt time.Time `json:"requested_at"`
	// RequestKey is the caller's idempotency key, if any.
	RequestKey string `json:"request_key,omitempty"`
}

// NewBatchApproveTask constructs an Asynq task. Retrying is safe: items that
// were already approved fail with an invalid state and are skipped.
func NewBatchApproveTask(payload BatchApprovePayload) (*asynq.Task, error) {
	if len(payload.IDs) == 0 || payload.AuditorID == 0 {
		return nil, ErrEmptyBatch
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalBatch, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// StatsRefreshPayload describes a statistics refresh.
type StatsRefreshPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewStatsRefreshTask constructs an Asynq task.
func NewStatsRefreshTask(payload StatsRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsRefresh, data, asynq.MaxRetry(1), asynq.Timeout(time.Minute)), nil
}
