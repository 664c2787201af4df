package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

const (
	// QueueRealtime carries deferred data_update broadcasts.
	QueueRealtime = "realtime"
	// QueueDefault takes ad hoc work such as manual triggers.
	QueueDefault = "default"
	// QueueMaintenance takes cron-driven housekeeping.
	QueueMaintenance = "maintenance"
	// TaskRealtimeBroadcast publishes a data_update event through the relay.
	TaskRealtimeBroadcast = "realtime:broadcast"
	// TaskAnalyticsGroupsRefresh rebuilds group statistics and announces them.
	TaskAnalyticsGroupsRefresh = "analytics:groups_refresh"
	// TaskIdempotencyCleanup purges expired Idempotency-Key records.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// BroadcastPayload describes a deferred realtime broadcast.
type BroadcastPayload struct {
	Category realtime.Category `json:"category"`
	BranchID *int64            `json:"branchId,omitempty"`
}

// NewBroadcastTask constructs an Asynq task.
func NewBroadcastTask(payload BroadcastPayload) (*asynq.Task, error) {
	if payload.Category == "" {
		return nil, fmt.Errorf("jobs: broadcast category required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRealtimeBroadcast, data), nil
}

// AnalyticsGroupsPayload scopes an analytics-groups refresh. A nil branch
// refreshes every branch.
type AnalyticsGroupsPayload struct {
	BranchID *int64 `json:"branchId,omitempty"`
}

// NewAnalyticsGroupsTask constructs an Asynq task.
func NewAnalyticsGroupsTask(branchID *int64) (*asynq.Task, error) {
	data, err := json.Marshal(AnalyticsGroupsPayload{BranchID: branchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsGroupsRefresh, data), nil
}

// CleanupPayload configures how old a processed key must be before removal.
type CleanupPayload struct {
	RetentionHours int `json:"retentionHours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
