package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// FallbackNotifier publishes through Primary and, when that fails, hands the
// broadcast to Deferred (the job queue) so the worker retries it.
type FallbackNotifier struct {
	Primary  realtime.Notifier
	Deferred realtime.Notifier
	Logger   *slog.Logger
}

// Notify implements realtime.Notifier.
func (n FallbackNotifier) Notify(ctx context.Context, category realtime.Category, branchID *int64) error {
	err := n.Primary.Notify(ctx, category, branchID)
	if err == nil || n.Deferred == nil {
		return err
	}
	logger(n.Logger).Warn("realtime publish failed, deferring to worker", slog.String("category", string(category)), slog.Any("error", err))
	if derr := n.Deferred.Notify(ctx, category, branchID); derr != nil {
		return errors.Join(err, derr)
	}
	return nil
}
