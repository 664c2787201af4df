// Command worker runs deferred realtime broadcasts and the scheduled
// housekeeping tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/innkeeper-pms/innkeeper/internal/app"
	jobmetrics "github.com/innkeeper-pms/innkeeper/internal/jobs"
	"github.com/innkeeper-pms/innkeeper/internal/platform/cache"
	"github.com/innkeeper-pms/innkeeper/internal/platform/db"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
	"github.com/innkeeper-pms/innkeeper/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, SlowQuery: cfg.PGSlowQuery, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	// Publish-only: the API instances own the sockets.
	relay := realtime.NewRelay(redisClient, cfg.RealtimeChannel, nil, logger)
	metrics := jobmetrics.NewMetrics(nil)

	cron, err := schedule(cfg)
	if err != nil {
		return err
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().Asynq(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRealtimeBroadcast, Handler: jobs.NewBroadcastJob(relay, logger, metrics).Handle},
			{Type: jobs.TaskAnalyticsGroupsRefresh, Handler: jobs.NewAnalyticsGroupsJob(pool, relay, logger, metrics).Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics).Handle},
		},
		Cron: cron,
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}
	return worker.Run(ctx)
}

// schedule builds the cron table; an empty spec disables that entry.
func schedule(cfg *app.Config) ([]jobs.CronRegistration, error) {
	analytics, err := jobs.NewAnalyticsGroupsTask(nil)
	if err != nil {
		return nil, err
	}
	cleanup, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetentionHours)
	if err != nil {
		return nil, err
	}
	return []jobs.CronRegistration{
		{Spec: cfg.AnalyticsRefreshCron, Task: analytics, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: cfg.IdempotencyCleanupCron, Task: cleanup, Options: []asynq.Option{asynq.MaxRetry(1)}},
	}, nil
}
