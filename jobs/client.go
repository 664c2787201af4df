package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// broadcastWindow collapses identical broadcasts enqueued close together.
// A data_update only invalidates, so one delivery per window suffices.
const broadcastWindow = 2 * time.Second

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueBroadcast schedules a realtime broadcast for the worker. A
// duplicate within the window is reported as (nil, nil).
func (c *Client) EnqueueBroadcast(ctx context.Context, payload BroadcastPayload) (*asynq.TaskInfo, error) {
	task, err := NewBroadcastTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueRealtime),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Second),
		asynq.Unique(broadcastWindow),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, nil
	}
	return info, err
}

// Notify implements realtime.Notifier by deferring the broadcast to the worker.
func (c *Client) Notify(ctx context.Context, category realtime.Category, branchID *int64) error {
	_, err := c.EnqueueBroadcast(ctx, BroadcastPayload{Category: category, BranchID: branchID})
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
