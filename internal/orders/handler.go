package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes order endpoints.
type Handler struct {
	service  *Service
	invoices *invoices.Service
	validate *validator.Validate
	rbac     rbac.Middleware
	logger   *slog.Logger
}

// NewHandler wires the orders handler.
func NewHandler(service *Service, inv *invoices.Service, validate *validator.Validate, rb rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{service: service, invoices: inv, validate: validate, rbac: rb, logger: logger}
}

// MountRoutes attaches order routes to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	sales := h.rbac.Require(rbac.RoleAdmin, rbac.RoleSales)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.With(sales).Post("/", h.create)
		r.Get("/{orderID}", h.get)
		r.With(sales).Put("/{orderID}", h.update)
		r.With(sales).Delete("/{orderID}", h.delete)
		r.With(sales).Patch("/{orderID}/status", h.updateStatus)
		r.With(sales).Post("/{orderID}/invoice", h.generateInvoice)
	})
}

type orderItemRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Quantity    int64   `json:"quantity" validate:"required,gt=0"`
	DiscountPct float64 `json:"discount_pct" validate:"gte=0,lte=100"`
}

type createOrderRequest struct {
	CustomerID      int64              `json:"customer_id" validate:"required,gt=0"`
	ShippingAddress *string            `json:"shipping_address"`
	Notes           *string            `json:"notes"`
	DiscountCents   int64              `json:"discount_cents" validate:"gte=0"`
	TaxCents        int64              `json:"tax_cents" validate:"gte=0"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateOrderRequest struct {
	ShippingAddress *string            `json:"shipping_address"`
	Notes           *string            `json:"notes"`
	DiscountCents   int64              `json:"discount_cents" validate:"gte=0"`
	TaxCents        int64              `json:"tax_cents" validate:"gte=0"`
	Items           []orderItemRequest `json:"items" validate:"omitempty,min=1,dive"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type orderItemResponse struct {
	ID             int64   `json:"id"`
	ProductID      int64   `json:"product_id"`
	ProductName    string  `json:"product_name"`
	ProductSKU     string  `json:"product_sku"`
	Quantity       int64   `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	DiscountPct    float64 `json:"discount_pct"`
	LineTotalCents int64   `json:"line_total_cents"`
}

type orderResponse struct {
	ID              int64               `json:"id"`
	OrderNumber     string              `json:"order_number"`
	CustomerID      int64               `json:"customer_id"`
	CustomerName    string              `json:"customer_name"`
	Status          string              `json:"status"`
	ShippingAddress *string             `json:"shipping_address"`
	Notes           *string             `json:"notes"`
	SubtotalCents   int64               `json:"subtotal_cents"`
	DiscountCents   int64               `json:"discount_cents"`
	TaxCents        int64               `json:"tax_cents"`
	TotalCents      int64               `json:"total_cents"`
	OrderedAt       *int64              `json:"ordered_at"`
	ShippedAt       *int64              `json:"shipped_at"`
	DeliveredAt     *int64              `json:"delivered_at"`
	CancelledAt     *int64              `json:"cancelled_at"`
	CreatedAt       int64               `json:"created_at"`
	UpdatedAt       int64               `json:"updated_at"`
	Items           []orderItemResponse `json:"items"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	items := make([]ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, DiscountPct: it.DiscountPct})
	}
	order, err := h.service.Create(r.Context(), CreateInput{
		CustomerID:      req.CustomerID,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		DiscountCents:   req.DiscountCents,
		TaxCents:        req.TaxCents,
		Items:           items,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, toOrderResponse(*order), "order created")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toOrderResponse(*order), "order")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		filter.CustomerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	out, meta, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res := make([]orderResponse, 0, len(out))
	for _, o := range out {
		res = append(res, toOrderResponse(o))
	}
	httpx.OKWithMeta(w, res, "orders", meta)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}
	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	items := make([]ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, DiscountPct: it.DiscountPct})
	}
	order, err := h.service.Update(r.Context(), id, UpdateInput{
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		DiscountCents:   req.DiscountCents,
		TaxCents:        req.TaxCents,
		Items:           items,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toOrderResponse(*order), "order updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id, actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, nil, "order deleted")
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.UpdateStatus(r.Context(), id, Status(req.Status), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toOrderResponse(*order), "order status updated")
}

func (h *Handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	invoice, err := h.invoices.GenerateFromOrder(r.Context(), id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, invoices.ToResponse(*invoice), "invoice generated")
}

func toOrderResponse(o OrderWithItems) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:             it.ID,
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			ProductSKU:     it.ProductSKU,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			DiscountPct:    it.DiscountPct,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		CustomerName:    o.CustomerName,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		Notes:           o.Notes,
		SubtotalCents:   o.SubtotalCents,
		DiscountCents:   o.DiscountCents,
		TaxCents:        o.TaxCents,
		TotalCents:      o.TotalCents,
		OrderedAt:       shared.MillisPtr(o.OrderedAt),
		ShippedAt:       shared.MillisPtr(o.ShippedAt),
		DeliveredAt:     shared.MillisPtr(o.DeliveredAt),
		CancelledAt:     shared.MillisPtr(o.CancelledAt),
		CreatedAt:       shared.Millis(o.CreatedAt),
		UpdatedAt:       shared.Millis(o.UpdatedAt),
		Items:           items,
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
}
