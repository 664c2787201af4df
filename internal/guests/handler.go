package guests

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/rbac"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
)

// Handler exposes guest endpoints.
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

// MountRoutes registers guest routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ModuleGuests, access.ActionRead))
		r.Get("/guests", h.list)
		r.Get("/guests/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ModuleGuests, access.ActionWrite))
		r.Post("/guests", h.create)
	})
}

type listResponse struct {
	Data       []Guest           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	branch, err := httpx.OptionalInt64Query(r, "branchId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageFromRequest(r)
	f := ListFilter{
		BranchID: rbac.SubjectFromContext(r.Context()).ScopeBranch(branch),
		Search:   r.URL.Query().Get("q"),
		Limit:    perPage,
		Offset:   (page - 1) * perPage,
	}
	list, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list guests", slog.Any("error", err))
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
	g, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scope := rbac.SubjectFromContext(r.Context()).ScopeBranch(nil)
	if scope != nil && g.BranchID != nil && *scope != *g.BranchID {
		httpx.RespondError(w, ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Branch staff always register into their own branch.
	if scope := rbac.SubjectFromContext(r.Context()).ScopeBranch(nil); scope != nil {
		req.BranchID = scope
	}
	g, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Warn("create guest", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}
