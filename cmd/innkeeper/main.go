package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/app"
	"github.com/innkeeper-pms/innkeeper/internal/auth"
	"github.com/innkeeper-pms/innkeeper/internal/guests"
	"github.com/innkeeper-pms/innkeeper/internal/observability"
	"github.com/innkeeper-pms/innkeeper/internal/platform/cache"
	"github.com/innkeeper-pms/innkeeper/internal/platform/db"
	"github.com/innkeeper-pms/innkeeper/internal/rbac"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
	"github.com/innkeeper-pms/innkeeper/internal/reservations"
	"github.com/innkeeper-pms/innkeeper/internal/rooms"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
	"github.com/innkeeper-pms/innkeeper/internal/users"
	"github.com/innkeeper-pms/innkeeper/jobs"
	"github.com/innkeeper-pms/innkeeper/web"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, SlowQuery: cfg.PGSlowQuery, Logger: logger})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	hub := realtime.NewHub(logger, realtime.WithMetrics(metrics))
	relay := realtime.NewRelay(redisClient, cfg.RealtimeChannel, hub, logger)

	redisOpts := cfg.Redis().Asynq()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()

	notifier := jobs.FallbackNotifier{Primary: relay, Deferred: jobClient, Logger: logger}

	sessionManager := shared.NewSessionManager(redisClient, "innkeeper_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), notifier, logger)
	authService := auth.NewService(auth.NewRepository(dbpool), rbacService)
	rbacMiddleware := rbac.Middleware{
		Evaluator: access.NewEvaluator(logger),
		Subjects:  authService,
		Logger:    logger,
	}

	roomService := rooms.NewService(rooms.NewRepository(dbpool), notifier, logger)
	reservationService := reservations.NewService(reservations.NewRepository(dbpool), notifier, logger)
	guestService := guests.NewService(guests.NewRepository(dbpool), notifier, logger)
	userService := users.NewService(users.NewRepository(dbpool), notifier, logger)

	static, err := fs.Sub(web.Dist, "dist")
	if err != nil {
		logger.Error("client bundle", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		AuthHandler:         auth.NewHandler(logger, authService, sessionManager, csrfManager),
		RBACHandler:         rbac.NewHandler(logger, rbacService, rbacMiddleware),
		RoomsHandler:        rooms.NewHandler(logger, roomService, rbacMiddleware),
		ReservationsHandler: reservations.NewHandler(logger, reservationService, rbacMiddleware),
		GuestsHandler:       guests.NewHandler(logger, guestService, rbacMiddleware),
		UsersHandler:        users.NewHandler(logger, userService, rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Realtime:            realtime.NewHandler(hub, logger, cfg.RealtimeAllowedOrigins),
		Metrics:             metrics,
		Static:              static,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
