package inventory

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

// Handler exposes the product catalogue and stock endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
	logger   *slog.Logger
}

// NewHandler wires the inventory handler.
func NewHandler(service *Service, validate *validator.Validate, rb rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, rbac: rb, logger: logger}
}

// MountRoutes attaches inventory routes to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/categories", h.listCategories)
		r.With(h.rbac.Require(rbac.RoleAdmin)).Post("/", h.createProduct)
		r.Get("/{productID}", h.getProduct)
		r.With(h.rbac.Require(rbac.RoleAdmin)).Put("/{productID}", h.updateProduct)
		r.With(h.rbac.Require(rbac.RoleAdmin)).Delete("/{productID}", h.deleteProduct)
	})
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/low-stock", h.lowStock)
		r.With(h.rbac.Require(rbac.RoleAdmin, rbac.RoleWarehouse)).Post("/{productID}/adjust", h.adjustStock)
		r.Get("/{productID}/transactions", h.listTransactions)
	})
}

type productRequest struct {
	SKU            string  `json:"sku" validate:"required,max=64"`
	Name           string  `json:"name" validate:"required,max=255"`
	Description    *string `json:"description"`
	Category       *string `json:"category"`
	UnitPriceCents int64   `json:"unit_price_cents" validate:"gte=0"`
	CostPriceCents int64   `json:"cost_price_cents" validate:"gte=0"`
	Unit           string  `json:"unit" validate:"required,max=32"`
	ReorderPoint   int64   `json:"reorder_point" validate:"gte=0"`
	ReorderQty     int64   `json:"reorder_quantity" validate:"gte=0"`
	Location       *string `json:"location"`
}

type adjustRequest struct {
	Type  string  `json:"transaction_type" validate:"required,oneof=adjustment return write_off"`
	Delta int64   `json:"quantity_change" validate:"required"`
	Notes *string `json:"notes"`
}

type productResponse struct {
	ID             int64   `json:"id"`
	SKU            string  `json:"sku"`
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	Category       *string `json:"category"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	CostPriceCents int64   `json:"cost_price_cents"`
	Unit           string  `json:"unit"`
	OnHand         int64   `json:"quantity_on_hand"`
	Reserved       int64   `json:"quantity_reserved"`
	Available      int64   `json:"quantity_available"`
	ReorderPoint   int64   `json:"reorder_point"`
	ReorderQty     int64   `json:"reorder_quantity"`
	Location       *string `json:"location"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

type ledgerEntryResponse struct {
	ID            int64   `json:"id"`
	ProductID     int64   `json:"product_id"`
	Type          string  `json:"transaction_type"`
	QuantityDelta int64   `json:"quantity_change"`
	ReferenceType *string `json:"reference_type"`
	ReferenceID   *int64  `json:"reference_id"`
	Notes         *string `json:"notes"`
	CreatedBy     int64   `json:"created_by"`
	CreatedByName *string `json:"created_by_name"`
	CreatedAt     int64   `json:"created_at"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	product, err := h.service.CreateProduct(r.Context(), req.toInput(), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, toProductResponse(*product), "product created")
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid product id", nil)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toProductResponse(*product), "product")
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	filter := ListFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
	}
	products, meta, err := h.service.ListProducts(r.Context(), filter, page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OKWithMeta(w, toProductResponses(products), "products", meta)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid product id", nil)
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	product, err := h.service.UpdateProduct(r.Context(), id, req.toInput(), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toProductResponse(*product), "product updated")
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid product id", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteProduct(r.Context(), id, actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, nil, "product deleted")
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid product id", nil)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	product, err := h.service.AdjustStock(r.Context(), AdjustInput{
		ProductID: id,
		Type:      TransactionType(req.Type),
		Delta:     req.Delta,
		Notes:     req.Notes,
		ActorID:   actor.UserID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toProductResponse(*product), "stock adjusted")
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid product id", nil)
		return
	}
	entries, err := h.service.ListTransactions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLedgerEntryResponse(e))
	}
	httpx.OK(w, out, "inventory transactions")
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.LowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toProductResponses(products), "low stock products")
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, categories, "categories")
}

func (req productRequest) toInput() ProductInput {
	return ProductInput{
		SKU:            req.SKU,
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		UnitPriceCents: req.UnitPriceCents,
		CostPriceCents: req.CostPriceCents,
		Unit:           req.Unit,
		ReorderPoint:   req.ReorderPoint,
		ReorderQty:     req.ReorderQty,
		Location:       req.Location,
	}
}

func toProductResponse(p ProductWithStock) productResponse {
	return productResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		UnitPriceCents: p.UnitPriceCents,
		CostPriceCents: p.CostPriceCents,
		Unit:           p.Unit,
		OnHand:         p.OnHand,
		Reserved:       p.Reserved,
		Available:      p.Available,
		ReorderPoint:   p.ReorderPoint,
		ReorderQty:     p.ReorderQty,
		Location:       p.Location,
		CreatedAt:      shared.Millis(p.CreatedAt),
		UpdatedAt:      shared.Millis(p.UpdatedAt),
	}
}

func toProductResponses(products []ProductWithStock) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

func toLedgerEntryResponse(e LedgerEntryWithActor) ledgerEntryResponse {
	var refType *string
	if e.ReferenceType != nil {
		s := string(*e.ReferenceType)
		refType = &s
	}
	return ledgerEntryResponse{
		ID:            e.ID,
		ProductID:     e.ProductID,
		Type:          string(e.Type),
		QuantityDelta: e.QuantityDelta,
		ReferenceType: refType,
		ReferenceID:   e.ReferenceID,
		Notes:         e.Notes,
		CreatedBy:     e.CreatedBy,
		CreatedByName: e.CreatedByName,
		CreatedAt:     shared.Millis(e.CreatedAt),
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
