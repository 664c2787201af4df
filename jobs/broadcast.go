package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/innkeeper-pms/innkeeper/internal/jobs"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BroadcastJob delivers deferred broadcasts through a Notifier, normally the
// Redis relay so every API instance fans the event out to its sockets.
type BroadcastJob struct {
	Notifier realtime.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewBroadcastJob wires dependencies for the broadcast handler.
func NewBroadcastJob(notifier realtime.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *BroadcastJob {
	return &BroadcastJob{Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle processes TaskRealtimeBroadcast tasks.
func (j *BroadcastJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Notifier == nil {
		return errors.New("realtime broadcast: handler not configured")
	}
	var payload BroadcastPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Category == "" {
		return asynq.SkipRetry
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskRealtimeBroadcast)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Notifier.Notify(ctx, payload.Category, payload.BranchID); err != nil {
		logger(j.Logger).Warn("realtime broadcast", slog.String("category", string(payload.Category)), slog.Any("error", err))
		return err
	}
	metrics.AddBroadcast(string(payload.Category))
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
