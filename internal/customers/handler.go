package customers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes customer CRUD endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
	logger   *slog.Logger
}

// NewHandler wires the customers handler.
func NewHandler(service *Service, validate *validator.Validate, rb rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, rbac: rb, logger: logger}
}

// MountRoutes attaches customer routes to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.list)
		r.With(h.rbac.Require(rbac.RoleAdmin, rbac.RoleSales)).Post("/", h.create)
		r.Get("/{customerID}", h.get)
		r.With(h.rbac.Require(rbac.RoleAdmin, rbac.RoleSales)).Put("/{customerID}", h.update)
		r.With(h.rbac.Require(rbac.RoleAdmin)).Delete("/{customerID}", h.delete)
	})
}

type customerRequest struct {
	Name    string  `json:"name" validate:"required,max=255"`
	Email   string  `json:"email" validate:"required,email"`
	Phone   *string `json:"phone"`
	Company *string `json:"company"`
	Address *string `json:"address"`
	City    *string `json:"city"`
	Country *string `json:"country"`
	Notes   *string `json:"notes"`
}

type customerResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone"`
	Company   *string `json:"company"`
	Address   *string `json:"address"`
	City      *string `json:"city"`
	Country   *string `json:"country"`
	Notes     *string `json:"notes"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	c, err := h.service.Create(r.Context(), req.toInput(), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, toResponse(*c), "customer created")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid customer id", nil)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toResponse(*c), "customer")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	filter := ListFilter{Search: r.URL.Query().Get("search")}
	customers, meta, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]customerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, toResponse(c))
	}
	httpx.OKWithMeta(w, out, "customers", meta)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid customer id", nil)
		return
	}
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	c, err := h.service.Update(r.Context(), id, req.toInput(), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toResponse(*c), "customer updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid customer id", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id, actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, nil, "customer deleted")
}

func (req customerRequest) toInput() Input {
	return Input{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Address: req.Address,
		City:    req.City,
		Country: req.Country,
		Notes:   req.Notes,
	}
}

func toResponse(c Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Company:   c.Company,
		Address:   c.Address,
		City:      c.City,
		Country:   c.Country,
		Notes:     c.Notes,
		CreatedAt: shared.Millis(c.CreatedAt),
		UpdatedAt: shared.Millis(c.UpdatedAt),
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
}
