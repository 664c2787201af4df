package app

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/innkeeper-pms/innkeeper/internal/auth"
	"github.com/innkeeper-pms/innkeeper/internal/guests"
	"github.com/innkeeper-pms/innkeeper/internal/observability"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/rbac"
	"github.com/innkeeper-pms/innkeeper/internal/reservations"
	"github.com/innkeeper-pms/innkeeper/internal/rooms"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
	"github.com/innkeeper-pms/innkeeper/internal/users"
	"github.com/innkeeper-pms/innkeeper/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler         *auth.Handler
	RBACHandler         *rbac.Handler
	RoomsHandler        *rooms.Handler
	ReservationsHandler *reservations.Handler
	GuestsHandler       *guests.Handler
	UsersHandler        *users.Handler
	JobHandler          *jobs.Handler

	// Realtime is the WebSocket endpoint. It is mounted ahead of the
	// middleware stack because the upgrade hijacks the connection.
	Realtime http.Handler
	Metrics  *observability.Metrics
	// Static holds the built client; nil disables the SPA fallback.
	Static fs.FS
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	if params.Realtime != nil {
		r.Handle("/ws", params.Realtime)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}

		r.Route("/api", func(r chi.Router) {
			if params.AuthHandler != nil {
				r.Route("/auth", params.AuthHandler.MountRoutes)
			}
			if params.RBACHandler != nil {
				params.RBACHandler.MountRoutes(r)
			}
			if params.RoomsHandler != nil {
				params.RoomsHandler.MountRoutes(r)
			}
			if params.ReservationsHandler != nil {
				params.ReservationsHandler.MountRoutes(r)
			}
			if params.GuestsHandler != nil {
				params.GuestsHandler.MountRoutes(r)
			}
			if params.UsersHandler != nil {
				params.UsersHandler.MountRoutes(r)
			}
			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				httpx.RespondError(w, httpx.ErrNotFound)
			})
		})
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.Static != nil {
			r.Get("/*", spaHandler(params.Static, logger))
		}
	})

	return r
}

// spaHandler serves files from the client bundle and falls back to
// index.html so client-side routes survive a reload.
func spaHandler(static fs.FS, logger *slog.Logger) http.HandlerFunc {
	files := http.FileServer(http.FS(static))
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" && name != "index.html" {
			if _, err := fs.Stat(static, name); err == nil {
				if strings.HasPrefix(name, "assets/") {
					w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				}
				files.ServeHTTP(w, r)
				return
			} else if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("stat static asset", slog.String("path", name), slog.Any("error", err))
			}
		}
		index, err := fs.ReadFile(static, "index.html")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(index)
	}
}
