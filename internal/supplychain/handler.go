package supplychain

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes supplier, purchase order and shipment endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
	logger   *slog.Logger
}

// NewHandler wires the supply chain handler.
func NewHandler(service *Service, validate *validator.Validate, rb rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, rbac: rb, logger: logger}
}

// MountRoutes attaches supply chain routes to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	warehouse := h.rbac.Require(rbac.RoleAdmin, rbac.RoleWarehouse)
	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", h.listSuppliers)
		r.With(warehouse).Post("/", h.createSupplier)
		r.Get("/{supplierID}", h.getSupplier)
		r.With(warehouse).Put("/{supplierID}", h.updateSupplier)
		r.With(h.rbac.Require(rbac.RoleAdmin)).Delete("/{supplierID}", h.deleteSupplier)
		r.Get("/{supplierID}/products", h.listSupplierProducts)
		r.With(warehouse).Post("/{supplierID}/products", h.linkSupplierProduct)
		r.With(warehouse).Delete("/{supplierID}/products/{productID}", h.unlinkSupplierProduct)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.With(warehouse).Post("/", h.createPO)
		r.Get("/{poID}", h.getPO)
		r.With(warehouse).Patch("/{poID}/status", h.setPOStatus)
		r.With(warehouse).Post("/{poID}/receive", h.receivePO)
	})
	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", h.listShipments)
		r.With(warehouse).Post("/", h.createShipment)
		r.Get("/{shipmentID}", h.getShipment)
		r.With(warehouse).Patch("/{shipmentID}/status", h.setShipmentStatus)
	})
}

type supplierRequest struct {
	Name         string  `json:"name" validate:"required,max=255"`
	ContactName  *string `json:"contact_name"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	PaymentTerms *string `json:"payment_terms"`
	Notes        *string `json:"notes"`
}

type supplierResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	ContactName  *string `json:"contact_name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	PaymentTerms *string `json:"payment_terms"`
	Notes        *string `json:"notes"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

type poItemRequest struct {
	ProductID       int64 `json:"product_id" validate:"required,gt=0"`
	QuantityOrdered int64 `json:"quantity_ordered" validate:"required,gt=0"`
	UnitCostCents   int64 `json:"unit_cost_cents" validate:"gte=0"`
}

type createPORequest struct {
	SupplierID   int64           `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDate *int64          `json:"expected_date"`
	Notes        *string         `json:"notes"`
	Items        []poItemRequest `json:"items" validate:"required,min=1,dive"`
}

type poStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type receiptLineRequest struct {
	ItemID           int64 `json:"item_id" validate:"required,gt=0"`
	QuantityReceived int64 `json:"quantity_received" validate:"required,gt=0"`
}

type receivePORequest struct {
	Items []receiptLineRequest `json:"items" validate:"required,min=1,dive"`
}

type poItemResponse struct {
	ID               int64  `json:"id"`
	ProductID        int64  `json:"product_id"`
	ProductName      string `json:"product_name"`
	ProductSKU       string `json:"product_sku"`
	QuantityOrdered  int64  `json:"quantity_ordered"`
	QuantityReceived int64  `json:"quantity_received"`
	UnitCostCents    int64  `json:"unit_cost_cents"`
	LineTotalCents   int64  `json:"line_total_cents"`
}

type poResponse struct {
	ID           int64            `json:"id"`
	PONumber     string           `json:"po_number"`
	SupplierID   int64            `json:"supplier_id"`
	SupplierName string           `json:"supplier_name"`
	Status       string           `json:"status"`
	ExpectedDate *int64           `json:"expected_date"`
	Notes        *string          `json:"notes"`
	TotalCents   int64            `json:"total_cents"`
	ReceivedAt   *int64           `json:"received_at"`
	CreatedAt    int64            `json:"created_at"`
	UpdatedAt    int64            `json:"updated_at"`
	Items        []poItemResponse `json:"items"`
}

type supplierProductRequest struct {
	ProductID        int64   `json:"product_id" validate:"required,gt=0"`
	SupplierSKU      *string `json:"supplier_sku"`
	CostPriceCents   int64   `json:"cost_price_cents" validate:"gte=0"`
	LeadTimeDays     int     `json:"lead_time_days" validate:"gte=0"`
	MinOrderQuantity int64   `json:"min_order_quantity" validate:"gte=0"`
	IsPreferred      bool    `json:"is_preferred"`
}

type supplierProductResponse struct {
	ProductID        int64   `json:"product_id"`
	ProductName      string  `json:"product_name"`
	ProductSKU       string  `json:"product_sku"`
	SupplierSKU      *string `json:"supplier_sku"`
	CostPriceCents   int64   `json:"cost_price_cents"`
	LeadTimeDays     int     `json:"lead_time_days"`
	MinOrderQuantity int64   `json:"min_order_quantity"`
	IsPreferred      bool    `json:"is_preferred"`
}

type shipmentRequest struct {
	OrderID           int64   `json:"order_id" validate:"required,gt=0"`
	Carrier           *string `json:"carrier"`
	TrackingNumber    *string `json:"tracking_number"`
	EstimatedDelivery *int64  `json:"estimated_delivery"`
	Notes             *string `json:"notes"`
}

type shipmentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type shipmentResponse struct {
	ID                int64   `json:"id"`
	ShipmentNumber    string  `json:"shipment_number"`
	OrderID           int64   `json:"order_id"`
	Carrier           *string `json:"carrier"`
	TrackingNumber    *string `json:"tracking_number"`
	Status            string  `json:"status"`
	EstimatedDelivery *int64  `json:"estimated_delivery"`
	Notes             *string `json:"notes"`
	ShippedAt         *int64  `json:"shipped_at"`
	DeliveredAt       *int64  `json:"delivered_at"`
	CreatedAt         int64   `json:"created_at"`
	UpdatedAt         int64   `json:"updated_at"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	sup, err := h.service.CreateSupplier(r.Context(), req.toInput(), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, toSupplierResponse(*sup), "supplier created")
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "supplierID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid supplier id", nil)
		return
	}
	sup, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toSupplierResponse(*sup), "supplier")
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	out, meta, err := h.service.ListSuppliers(r.Context(), r.URL.Query().Get("search"), page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res := make([]supplierResponse, 0, len(out))
	for _, sup := range out {
		res = append(res, toSupplierResponse(sup))
	}
	httpx.OKWithMeta(w, res, "suppliers", meta)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "supplierID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid supplier id", nil)
		return
	}
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	sup, err := h.service.UpdateSupplier(r.Context(), id, req.toInput(), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toSupplierResponse(*sup), "supplier updated")
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "supplierID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid supplier id", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteSupplier(r.Context(), id, actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, nil, "supplier deleted")
}

func (h *Handler) listSupplierProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "supplierID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid supplier id", nil)
		return
	}
	out, err := h.service.ListSupplierProducts(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toSupplierProductResponses(out), "supplier products")
}

func (h *Handler) linkSupplierProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "supplierID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid supplier id", nil)
		return
	}
	var req supplierProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	out, err := h.service.LinkSupplierProduct(r.Context(), SupplierProduct{
		SupplierID:       id,
		ProductID:        req.ProductID,
		SupplierSKU:      req.SupplierSKU,
		CostPriceCents:   req.CostPriceCents,
		LeadTimeDays:     req.LeadTimeDays,
		MinOrderQuantity: req.MinOrderQuantity,
		IsPreferred:      req.IsPreferred,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, toSupplierProductResponses(out), "product linked")
}

func (h *Handler) unlinkSupplierProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "supplierID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid supplier id", nil)
		return
	}
	productID, err := pathID(r, "productID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid product id", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UnlinkSupplierProduct(r.Context(), id, productID, actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, nil, "product unlinked")
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	items := make([]POItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, POItemInput{
			ProductID:       it.ProductID,
			QuantityOrdered: it.QuantityOrdered,
			UnitCostCents:   it.UnitCostCents,
		})
	}
	var expected *time.Time
	if req.ExpectedDate != nil {
		t := shared.FromMillis(*req.ExpectedDate)
		expected = &t
	}
	po, err := h.service.CreatePO(r.Context(), POCreateInput{
		SupplierID:   req.SupplierID,
		ExpectedDate: expected,
		Notes:        req.Notes,
		Items:        items,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, toPOResponse(*po), "purchase order created")
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "poID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid purchase order id", nil)
		return
	}
	po, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toPOResponse(*po), "purchase order")
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	filter := POListFilter{Status: POStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("supplier_id"); raw != "" {
		filter.SupplierID, _ = strconv.ParseInt(raw, 10, 64)
	}
	out, meta, err := h.service.ListPOs(r.Context(), filter, page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res := make([]poResponse, 0, len(out))
	for _, po := range out {
		res = append(res, toPOResponse(po))
	}
	httpx.OKWithMeta(w, res, "purchase orders", meta)
}

func (h *Handler) setPOStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "poID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid purchase order id", nil)
		return
	}
	var req poStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	po, err := h.service.SetPOStatus(r.Context(), id, POStatus(req.Status), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toPOResponse(*po), "purchase order status updated")
}

func (h *Handler) receivePO(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "poID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid purchase order id", nil)
		return
	}
	var req receivePORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	receipts := make([]ReceiptLine, 0, len(req.Items))
	for _, it := range req.Items {
		receipts = append(receipts, ReceiptLine{ItemID: it.ItemID, QuantityReceived: it.QuantityReceived})
	}
	po, err := h.service.Receive(r.Context(), id, receipts, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toPOResponse(*po), "purchase order received")
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	var estimated *time.Time
	if req.EstimatedDelivery != nil {
		t := shared.FromMillis(*req.EstimatedDelivery)
		estimated = &t
	}
	sh, err := h.service.CreateShipment(r.Context(), ShipmentInput{
		OrderID:           req.OrderID,
		Carrier:           req.Carrier,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: estimated,
		Notes:             req.Notes,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, toShipmentResponse(*sh), "shipment created")
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid shipment id", nil)
		return
	}
	sh, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toShipmentResponse(*sh), "shipment")
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	var orderID int64
	if raw := r.URL.Query().Get("order_id"); raw != "" {
		orderID, _ = strconv.ParseInt(raw, 10, 64)
	}
	out, meta, err := h.service.ListShipments(r.Context(), orderID, page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res := make([]shipmentResponse, 0, len(out))
	for _, sh := range out {
		res = append(res, toShipmentResponse(sh))
	}
	httpx.OKWithMeta(w, res, "shipments", meta)
}

func (h *Handler) setShipmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid shipment id", nil)
		return
	}
	var req shipmentStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	sh, err := h.service.SetShipmentStatus(r.Context(), id, ShipmentStatus(req.Status), actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, toShipmentResponse(*sh), "shipment status updated")
}

func (req supplierRequest) toInput() SupplierInput {
	return SupplierInput{
		Name:         req.Name,
		ContactName:  req.ContactName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		PaymentTerms: req.PaymentTerms,
		Notes:        req.Notes,
	}
}

func toSupplierResponse(s Supplier) supplierResponse {
	return supplierResponse{
		ID:           s.ID,
		Name:         s.Name,
		ContactName:  s.ContactName,
		Email:        s.Email,
		Phone:        s.Phone,
		Address:      s.Address,
		PaymentTerms: s.PaymentTerms,
		Notes:        s.Notes,
		CreatedAt:    shared.Millis(s.CreatedAt),
		UpdatedAt:    shared.Millis(s.UpdatedAt),
	}
}

func toSupplierProductResponses(in []SupplierProductDetail) []supplierProductResponse {
	out := make([]supplierProductResponse, 0, len(in))
	for _, sp := range in {
		out = append(out, supplierProductResponse{
			ProductID:        sp.ProductID,
			ProductName:      sp.ProductName,
			ProductSKU:       sp.ProductSKU,
			SupplierSKU:      sp.SupplierSKU,
			CostPriceCents:   sp.CostPriceCents,
			LeadTimeDays:     sp.LeadTimeDays,
			MinOrderQuantity: sp.MinOrderQuantity,
			IsPreferred:      sp.IsPreferred,
		})
	}
	return out
}

func toPOResponse(po POWithItems) poResponse {
	items := make([]poItemResponse, 0, len(po.Items))
	for _, it := range po.Items {
		items = append(items, poItemResponse{
			ID:               it.ID,
			ProductID:        it.ProductID,
			ProductName:      it.ProductName,
			ProductSKU:       it.ProductSKU,
			QuantityOrdered:  it.QuantityOrdered,
			QuantityReceived: it.QuantityReceived,
			UnitCostCents:    it.UnitCostCents,
			LineTotalCents:   it.LineTotalCents,
		})
	}
	return poResponse{
		ID:           po.ID,
		PONumber:     po.PONumber,
		SupplierID:   po.SupplierID,
		SupplierName: po.SupplierName,
		Status:       string(po.Status),
		ExpectedDate: shared.MillisPtr(po.ExpectedDate),
		Notes:        po.Notes,
		TotalCents:   po.TotalCents,
		ReceivedAt:   shared.MillisPtr(po.ReceivedAt),
		CreatedAt:    shared.Millis(po.CreatedAt),
		UpdatedAt:    shared.Millis(po.UpdatedAt),
		Items:        items,
	}
}

func toShipmentResponse(s Shipment) shipmentResponse {
	return shipmentResponse{
		ID:                s.ID,
		ShipmentNumber:    s.ShipmentNumber,
		OrderID:           s.OrderID,
		Carrier:           s.Carrier,
		TrackingNumber:    s.TrackingNumber,
		Status:            string(s.Status),
		EstimatedDelivery: shared.MillisPtr(s.EstimatedDelivery),
		Notes:             s.Notes,
		ShippedAt:         shared.MillisPtr(s.ShippedAt),
		DeliveredAt:       shared.MillisPtr(s.DeliveredAt),
		CreatedAt:         shared.Millis(s.CreatedAt),
		UpdatedAt:         shared.Millis(s.UpdatedAt),
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
