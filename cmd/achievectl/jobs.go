package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/achievehub/achievehub/jobs"
)

// jobsCLI wraps manual management helpers for Asynq jobs.
type jobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) *jobsCLI {
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	return &jobsCLI{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}
}

// Close releases underlying resources.
func (c *jobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// triggerRequest carries the inputs of a manual enqueue.
type triggerRequest struct {
	Name      string
	IDs       []int64
	AuditorID int64
}

func buildTask(req triggerRequest, now time.Time) (*asynq.Task, error) {
	switch req.Name {
	case jobs.TaskStatsRefresh:
		return jobs.NewStatsRefreshTask(jobs.StatsRefreshPayload{Reason: "manual"})
	case jobs.TaskApprovalBatch:
		return jobs.NewBatchApproveTask(jobs.BatchApprovePayload{IDs: req.IDs, AuditorID: req.AuditorID, RequestedAt: now.UTC()})
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", req.Name)
	}
}

// Trigger enqueues a supported job.
func (c *jobsCLI) Trigger(ctx context.Context, req triggerRequest) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := buildTask(req, time.Now())
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault))
}

// queueStats summarises the current queue state.
type queueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the metrics of one queue.
func (c *jobsCLI) InspectQueue(queue string) (queueStats, error) {
	if c == nil || c.inspector == nil {
		return queueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := queueStats{Queue: queue}
	info, err := c.inspector.GetQueueInfo(queue)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return queueStats{}, err
	}
	stats.Pending = info.Pending
	stats.Active = info.Active
	stats.Scheduled = info.Scheduled
	stats.Retry = info.Retry
	stats.Archived = info.Archived
	return stats, nil
}

func jobsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	var (
		rawIDs    string
		auditorID int64
	)
	trigger := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a background task",
		Long:      "Enqueue a task by type: " + jobs.TaskStatsRefresh + " or " + jobs.TaskApprovalBatch + " (needs --ids and --auditor).",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskStatsRefresh, jobs.TaskApprovalBatch},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := triggerRequest{Name: args[0], AuditorID: auditorID}
			if req.Name == jobs.TaskApprovalBatch {
				ids, err := parseIDs(rawIDs)
				if err != nil {
					return err
				}
				req.IDs = ids
			}
			ctx, cancel := commandContext(opts)
			defer cancel()
			cli := newJobsCLI(opts.redisAddr)
			defer cli.Close()
			info, err := cli.Trigger(ctx, req)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.json,
				map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue},
				fmt.Sprintf("enqueued %s as %s on %s", info.Type, info.ID, info.Queue))
		},
	}
	trigger.Flags().StringVar(&rawIDs, "ids", "", "Comma separated achievement ids")
	trigger.Flags().Int64Var(&auditorID, "auditor", 0, "Auditor user id recorded on the decisions")

	var queue string
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := newJobsCLI(opts.redisAddr)
			defer cli.Close()
			stats, err := cli.InspectQueue(queue)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.json, stats,
				fmt.Sprintf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived))
		},
	}
	inspect.Flags().StringVar(&queue, "queue", jobs.QueueDefault, "Queue name")

	cmd.AddCommand(trigger, inspect)
	return cmd
}
