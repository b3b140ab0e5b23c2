package supplychain

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Supplier is a vendor record. Soft-deleted so purchase orders keep
// their reference.
type Supplier struct {
	ID           int64
	Name         string
	ContactName  *string
	Email        *string
	Phone        *string
	Address      *string
	PaymentTerms *string
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// SupplierInput carries create/update fields for a supplier.
type SupplierInput struct {
	Name         string
	ContactName  *string
	Email        *string
	Phone        *string
	Address      *string
	PaymentTerms *string
	Notes        *string
}

// POStatus is the purchase order state.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusSent      POStatus = "sent"
	POStatusConfirmed POStatus = "confirmed"
	POStatusPartial   POStatus = "partial"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

// settableStatuses are the states callers may set directly. partial and
// received are derived from receipt quantities and never set by hand.
var settableTransitions = map[POStatus][]POStatus{
	POStatusDraft:     {POStatusSent, POStatusCancelled},
	POStatusSent:      {POStatusConfirmed, POStatusCancelled},
	POStatusConfirmed: {POStatusCancelled},
	POStatusPartial:   {},
	POStatusReceived:  {},
	POStatusCancelled: {},
}

// CanSetStatus reports whether a caller may set from -> to directly.
func CanSetStatus(from, to POStatus) bool {
	for _, next := range settableTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidPOStatus reports whether s names a known state.
func ValidPOStatus(s POStatus) bool {
	_, ok := settableTransitions[s]
	return ok
}

// POTransitionError builds the InvalidTransition failure.
func POTransitionError(from, to POStatus) error {
	return fmt.Errorf("%w: cannot move purchase order from %s to %s", shared.ErrInvalidTransition, from, to)
}

// PurchaseOrder is the procurement header.
type PurchaseOrder struct {
	ID           int64
	PONumber     string
	SupplierID   int64
	Status       POStatus
	ExpectedDate *time.Time
	Notes        *string
	TotalCents   int64
	ReceivedAt   *time.Time
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// POItem is one procurement line. QuantityReceived only grows, one
// receipt delta at a time.
type POItem struct {
	ID               int64
	PurchaseOrderID  int64
	ProductID        int64
	QuantityOrdered  int64
	QuantityReceived int64
	UnitCostCents    int64
	LineTotalCents   int64
}

// POWithItems is the aggregate returned by reads.
type POWithItems struct {
	PurchaseOrder
	SupplierName string
	Items        []POItemDetail
}

// POItemDetail joins a line with its product's display fields.
type POItemDetail struct {
	POItem
	ProductName string
	ProductSKU  string
}

// POItemInput is one requested procurement line.
type POItemInput struct {
	ProductID       int64
	QuantityOrdered int64
	UnitCostCents   int64
}

// POCreateInput carries the purchase order creation payload.
type POCreateInput struct {
	SupplierID   int64
	ExpectedDate *time.Time
	Notes        *string
	Items        []POItemInput
}

// ReceiptLine is one received quantity keyed by PO item id.
type ReceiptLine struct {
	ItemID           int64
	QuantityReceived int64
}

// POListFilter narrows purchase order listings.
type POListFilter struct {
	Status     POStatus
	SupplierID int64
}

// DeriveStatus recomputes a PO's receipt status by scanning all lines.
// A full recompute each call keeps the status consistent with the
// quantities without incremental bookkeeping.
func DeriveStatus(items []POItem, current POStatus) POStatus {
	allReceived := len(items) > 0
	anyReceived := false
	for _, it := range items {
		if it.QuantityReceived > 0 {
			anyReceived = true
		}
		if it.QuantityReceived < it.QuantityOrdered {
			allReceived = false
		}
	}
	switch {
	case allReceived:
		return POStatusReceived
	case anyReceived:
		return POStatusPartial
	default:
		return current
	}
}

// ShipmentStatus is the outbound shipment state.
type ShipmentStatus string

const (
	ShipmentPending    ShipmentStatus = "pending"
	ShipmentPicked     ShipmentStatus = "picked"
	ShipmentPacked     ShipmentStatus = "packed"
	ShipmentDispatched ShipmentStatus = "dispatched"
	ShipmentInTransit  ShipmentStatus = "in_transit"
	ShipmentDelivered  ShipmentStatus = "delivered"
	ShipmentReturned   ShipmentStatus = "returned"
)

// ValidShipmentStatus reports whether s names a known shipment state.
func ValidShipmentStatus(s ShipmentStatus) bool {
	switch s {
	case ShipmentPending, ShipmentPicked, ShipmentPacked, ShipmentDispatched,
		ShipmentInTransit, ShipmentDelivered, ShipmentReturned:
		return true
	}
	return false
}

// Shipment tracks one outbound delivery for a shipped order.
type Shipment struct {
	ID                int64
	ShipmentNumber    string
	OrderID           int64
	Carrier           *string
	TrackingNumber    *string
	Status            ShipmentStatus
	EstimatedDelivery *time.Time
	Notes             *string
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CreatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ShipmentInput carries shipment creation fields.
type ShipmentInput struct {
	OrderID           int64
	Carrier           *string
	TrackingNumber    *string
	EstimatedDelivery *time.Time
	Notes             *string
}

// SupplierProduct links a supplier to a product it can source.
type SupplierProduct struct {
	SupplierID       int64
	ProductID        int64
	SupplierSKU      *string
	CostPriceCents   int64
	LeadTimeDays     int
	MinOrderQuantity int64
	IsPreferred      bool
}

// SupplierProductDetail joins the catalog row with the product it names.
type SupplierProductDetail struct {
	SupplierProduct
	ProductName string
	ProductSKU  string
}
