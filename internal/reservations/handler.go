package reservations

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/rbac"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
)

// Handler exposes reservation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers reservation routes. Cancelling is gated as a delete.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ModuleReservations, access.ActionRead))
		r.Get("/reservations", h.list)
		r.Get("/reservations/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ModuleReservations, access.ActionWrite))
		r.Post("/reservations", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ModuleReservations, access.ActionDelete))
		r.Post("/reservations/{id}/cancel", h.cancel)
	})
}

type listResponse struct {
	Data       []Reservation     `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	branch, err := httpx.OptionalInt64Query(r, "branchId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f := ListFilter{BranchID: rbac.SubjectFromContext(r.Context()).ScopeBranch(branch)}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := Status(raw)
		f.Status = &status
	}
	page, perPage := shared.PageFromRequest(r)
	f.Limit = perPage
	f.Offset = (page - 1) * perPage

	list, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list reservations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: list, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if scope := rbac.SubjectFromContext(r.Context()).ScopeBranch(nil); scope != nil && *scope != res.BranchID {
		httpx.RespondError(w, ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	subject := rbac.SubjectFromContext(r.Context())
	var userID int64
	if subject != nil {
		userID = subject.UserID
	}
	key := strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader))
	res, err := h.service.Create(r.Context(), req, userID, subject.ScopeBranch(nil), key)
	if err != nil {
		h.logger.Warn("create reservation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scope := rbac.SubjectFromContext(r.Context()).ScopeBranch(nil)
	res, err := h.service.Cancel(r.Context(), id, scope)
	if err != nil {
		h.logger.Warn("cancel reservation", slog.Int64("reservation_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
