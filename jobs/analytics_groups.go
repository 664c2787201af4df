package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"

	jobmetrics "github.com/innkeeper-pms/innkeeper/internal/jobs"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// Execer is satisfied by pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const refreshGroupStats = `REFRESH MATERIALIZED VIEW CONCURRENTLY analytics_group_stats`

// AnalyticsGroupsJob rebuilds the guest-group statistics view and tells
// dashboards to refetch.
type AnalyticsGroupsJob struct {
	DB       Execer
	Notifier realtime.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAnalyticsGroupsJob wires dependencies for the refresh handler.
func NewAnalyticsGroupsJob(db Execer, notifier realtime.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsGroupsJob {
	return &AnalyticsGroupsJob{DB: db, Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAnalyticsGroupsRefresh tasks.
func (j *AnalyticsGroupsJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.DB == nil || j.Notifier == nil {
		return errors.New("analytics groups: handler not configured")
	}
	var payload AnalyticsGroupsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAnalyticsGroupsRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	if _, err := j.DB.Exec(ctx, refreshGroupStats); err != nil {
		logger(j.Logger).Error("refresh analytics groups", slog.Any("error", err))
		return fmt.Errorf("refresh analytics groups: %w", err)
	}
	// The view is already committed; a lost notification is covered by client polling.
	if err := j.Notifier.Notify(ctx, realtime.CategoryAnalyticsGroups, payload.BranchID); err != nil {
		logger(j.Logger).Warn("analytics groups notify", slog.Any("error", err))
		return nil
	}
	metrics.AddBroadcast(string(realtime.CategoryAnalyticsGroups))
	return nil
}
