package invoices

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

// Handler exposes invoice endpoints. Generation lives on the orders
// routes; this handler covers reads and payment status updates.
type Handler struct {
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
	logger   *slog.Logger
}

// NewHandler wires the invoices handler.
func NewHandler(service *Service, validate *validator.Validate, rb rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, rbac: rb, logger: logger}
}

// MountRoutes attaches invoice routes to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	sales := h.rbac.Require(rbac.RoleAdmin, rbac.RoleSales)
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{invoiceID}", h.get)
		r.With(sales).Patch("/{invoiceID}/status", h.updateStatus)
	})
}

type invoiceStatusRequest struct {
	Status          string `json:"status" validate:"required"`
	AmountPaidCents *int64 `json:"amount_paid_cents" validate:"omitempty,gte=0"`
}

// Response is the invoice wire shape.
type Response struct {
	ID              int64  `json:"id"`
	InvoiceNumber   string `json:"invoice_number"`
	OrderID         int64  `json:"order_id"`
	OrderNumber     string `json:"order_number"`
	CustomerName    string `json:"customer_name"`
	Status          string `json:"status"`
	SubtotalCents   int64  `json:"subtotal_cents"`
	DiscountCents   int64  `json:"discount_cents"`
	TaxCents        int64  `json:"tax_cents"`
	TotalCents      int64  `json:"total_cents"`
	TotalDisplay    string `json:"total_display"`
	AmountPaidCents int64  `json:"amount_paid_cents"`
	DueDate         int64  `json:"due_date"`
	SentAt          *int64 `json:"sent_at"`
	PaidAt          *int64 `json:"paid_at"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

// ToResponse maps an invoice to its wire shape.
func ToResponse(inv InvoiceWithOrder) Response {
	return Response{
		ID:              inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		OrderID:         inv.OrderID,
		OrderNumber:     inv.OrderNumber,
		CustomerName:    inv.CustomerName,
		Status:          string(inv.Status),
		SubtotalCents:   inv.SubtotalCents,
		DiscountCents:   inv.DiscountCents,
		TaxCents:        inv.TaxCents,
		TotalCents:      inv.TotalCents,
		TotalDisplay:    DisplayAmount(inv.TotalCents),
		AmountPaidCents: inv.AmountPaidCents,
		DueDate:         shared.Millis(inv.DueDate),
		SentAt:          shared.MillisPtr(inv.SentAt),
		PaidAt:          shared.MillisPtr(inv.PaidAt),
		CreatedAt:       shared.Millis(inv.CreatedAt),
		UpdatedAt:       shared.Millis(inv.UpdatedAt),
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid invoice id", nil)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, ToResponse(*inv), "invoice")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	out, meta, err := h.service.List(r.Context(), page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res := make([]Response, 0, len(out))
	for _, inv := range out {
		res = append(res, ToResponse(inv))
	}
	httpx.OKWithMeta(w, res, "invoices", meta)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid invoice id", nil)
		return
	}
	var req invoiceStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.UpdateStatus(r.Context(), id, StatusInput{
		Status:          Status(req.Status),
		AmountPaidCents: req.AmountPaidCents,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, ToResponse(*inv), "invoice status updated")
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
}
