package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/achievehub/achievehub/internal/jobs"
	"github.com/achievehub/achievehub/internal/stats"
)

// StatsRefreshCron refreshes the statistics cache every five minutes.
const StatsRefreshCron = "*/5 * * * *"

// StatsRefresher recomputes the statistics snapshot.
type StatsRefresher interface {
	Refresh(ctx context.Context) (stats.Statistics, error)
}

// StatsRefreshJob processes TaskStatsRefresh tasks.
type StatsRefreshJob struct {
	View    StatsRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStatsRefreshJob wires dependencies for the refresh handler.
func NewStatsRefreshJob(view StatsRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsRefreshJob {
	return &StatsRefreshJob{View: view, Logger: logger, Metrics: metrics}
}

// Handle processes one refresh task.
func (j *StatsRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.View == nil {
		return errors.New("stats refresh: handler not configured")
	}
	var payload StatsRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskStatsRefresh)
	snapshot, err := j.View.Refresh(ctx)
	if err != nil {
		return tracker.End(err)
	}
	if j.Logger != nil {
		j.Logger.Debug("statistics refreshed",
			slog.String("reason", payload.Reason),
			slog.Int("pending", snapshot.PendingCount))
	}
	return tracker.End(nil)
}

// StatsRefreshRegistration schedules the refresh task.
func StatsRefreshRegistration() (CronRegistration, error) {
	task, err := NewStatsRefreshTask(StatsRefreshPayload{Reason: "cron"})
	if err != nil {
		return CronRegistration{}, err
	}
	return CronRegistration{Spec: StatsRefreshCron, Task: task, Options: []asynq.Option{asynq.Queue(QueueDefault)}}, nil
}
