package orders

import (
	"fmt"
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// validTransitions is the full state machine. Terminal states carry no
// outgoing edges.
var validTransitions = map[Status][]Status{
	StatusDraft:      {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError builds the InvalidTransition failure naming both states.
func TransitionError(from, to Status) error {
	return fmt.Errorf("%w: cannot move order from %s to %s", shared.ErrInvalidTransition, from, to)
}

// ValidStatus reports whether s names a known lifecycle state.
func ValidStatus(s Status) bool {
	_, ok := validTransitions[s]
	return ok
}

// Order is the sales order header with computed totals. Each lifecycle
// timestamp is stamped exactly once, when its transition fires.
type Order struct {
	ID              int64
	OrderNumber     string
	CustomerID      int64
	Status          Status
	ShippingAddress *string
	Notes           *string
	SubtotalCents   int64
	DiscountCents   int64
	TaxCents        int64
	TotalCents      int64
	OrderedAt       *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is one order line with the price snapshot taken at order time.
type Item struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	Quantity       int64
	UnitPriceCents int64
	DiscountPct    float64
	LineTotalCents int64
}

// OrderWithItems is the aggregate returned by reads.
type OrderWithItems struct {
	Order
	CustomerName string
	Items        []ItemDetail
}

// ItemDetail joins a line with its product's display fields.
type ItemDetail struct {
	Item
	ProductName string
	ProductSKU  string
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID   int64
	Quantity    int64
	DiscountPct float64
}

// CreateInput carries the order creation payload.
type CreateInput struct {
	CustomerID      int64
	ShippingAddress *string
	Notes           *string
	DiscountCents   int64
	TaxCents        int64
	Items           []ItemInput
}

// UpdateInput carries the draft-only edit payload. Line items are
// replaced wholesale.
type UpdateInput struct {
	ShippingAddress *string
	Notes           *string
	DiscountCents   int64
	TaxCents        int64
	Items           []ItemInput
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     Status
	CustomerID int64
}

// LineTotal computes one line's total in cents: the unit price times
// quantity, discounted by the percentage, rounded half-up per line. The
// per-line rounding happens before summing, so a subtotal can differ
// from rounding the undiscounted sum once.
func LineTotal(unitPriceCents, quantity int64, discountPct float64) int64 {
	raw := float64(unitPriceCents*quantity) * (1 - discountPct/100)
	return int64(math.Floor(raw + 0.5))
}

// ComputeTotals derives subtotal and total from priced lines and the
// order-level discount and tax.
func ComputeTotals(lines []Item, discountCents, taxCents int64) (subtotal, total int64) {
	for _, l := range lines {
		subtotal += l.LineTotalCents
	}
	return subtotal, subtotal - discountCents + taxCents
}
