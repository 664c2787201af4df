package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/innkeeper-pms/innkeeper/internal/platform/cache"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
	"github.com/innkeeper-pms/innkeeper/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the queue that lives in the given Redis database.
func NewJobsCLI(opts cache.Options) (*JobsCLI, error) {
	if opts.Addr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	redisOpt := opts.Asynq()
	return &JobsCLI{client: asynq.NewClient(redisOpt), inspector: asynq.NewInspector(redisOpt)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
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

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := defaultTask(name)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// Broadcast enqueues a realtime broadcast, as if a write had happened.
func (c *JobsCLI) Broadcast(ctx context.Context, category string, branchID *int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := broadcastTask(category, branchID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueRealtime), asynq.MaxRetry(3))
}

func defaultTask(name string) (*asynq.Task, error) {
	switch name {
	case jobs.TaskAnalyticsGroupsRefresh:
		return jobs.NewAnalyticsGroupsTask(nil)
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(jobs.DefaultRetentionHours)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

func broadcastTask(category string, branchID *int64) (*asynq.Task, error) {
	c := realtime.Category(category)
	for _, known := range realtime.Categories() {
		if c == known {
			return jobs.NewBroadcastTask(jobs.BroadcastPayload{Category: c, BranchID: branchID})
		}
	}
	return nil, fmt.Errorf("jobs cli: unknown category %q", category)
}

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports counters for every queue the worker serves. Queues
// that never received a task report zeroes.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	out := make([]QueueStats, 0, len(jobs.Queues()))
	for _, name := range jobs.Queues() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		switch {
		case errors.Is(err, asynq.ErrQueueNotFound):
		case err != nil:
			return nil, fmt.Errorf("jobs cli: inspect %s: %w", name, err)
		case info != nil:
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}
