package rooms

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/rbac"
)

// Handler exposes room endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers room routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ModuleRooms, access.ActionRead))
		r.Get("/rooms", h.list)
		r.Get("/rooms/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ModuleRooms, access.ActionWrite))
		r.Patch("/rooms/{id}/status", h.updateStatus)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	branch, err := httpx.OptionalInt64Query(r, "branchId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	branch = rbac.SubjectFromContext(r.Context()).ScopeBranch(branch)
	rooms, err := h.service.List(r.Context(), branch)
	if err != nil {
		h.logger.Error("list rooms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rooms)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	room, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, room)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	room, ok := h.load(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, map[string]string{"status": "required"})
		return
	}
	updated, err := h.service.UpdateStatus(r.Context(), room.ID, req.Status)
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("update room status", slog.Int64("room_id", room.ID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

// load fetches the room named in the URL, hiding rooms of other branches.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Room, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return Room{}, false
	}
	room, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return Room{}, false
	}
	if scope := rbac.SubjectFromContext(r.Context()).ScopeBranch(nil); scope != nil && *scope != room.BranchID {
		httpx.RespondError(w, ErrNotFound)
		return Room{}, false
	}
	return room, true
}
