package inventory

import "time"

// TransactionType enumerates supported ledger movement types.
type TransactionType string

const (
	// TransactionTypeAdjustment covers manual corrections and reservation bookkeeping.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeReturn records customer returns added back to stock.
	TransactionTypeReturn TransactionType = "return"
	// TransactionTypeWriteOff records damaged or lost stock removed from hand.
	TransactionTypeWriteOff TransactionType = "write_off"
	// TransactionTypeSale records stock leaving on a shipped order.
	TransactionTypeSale TransactionType = "sale"
	// TransactionTypePurchaseReceipt records stock received against a purchase order.
	TransactionTypePurchaseReceipt TransactionType = "purchase_receipt"
)

// ReferenceType names the entity a ledger entry points back to.
type ReferenceType string

const (
	ReferenceOrder         ReferenceType = "order"
	ReferencePurchaseOrder ReferenceType = "purchase_order"
)

// Product is the catalogue entry. Identity (SKU, name) is immutable in
// spirit; pricing and classification change over time. Soft-deleted so
// historical order lines keep their reference.
type Product struct {
	ID             int64
	SKU            string
	Name           string
	Description    *string
	Category       *string
	UnitPriceCents int64
	CostPriceCents int64
	Unit           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Record tracks stock counters for one product. Available quantity is
// always derived as OnHand - Reserved, never stored.
type Record struct {
	ProductID    int64
	OnHand       int64
	Reserved     int64
	ReorderPoint int64
	ReorderQty   int64
	Location     *string
	UpdatedAt    time.Time
}

// Available returns the sellable quantity.
func (r Record) Available() int64 {
	return r.OnHand - r.Reserved
}

// LedgerEntry is one append-only row in inventory_transactions. Every
// counter mutation writes exactly one entry in the same transaction.
type LedgerEntry struct {
	ID            int64
	ProductID     int64
	Type          TransactionType
	QuantityDelta int64
	ReferenceType *ReferenceType
	ReferenceID   *int64
	Notes         *string
	CreatedBy     int64
	CreatedAt     time.Time
}

// ProductWithStock joins a product with its inventory counters for reads.
type ProductWithStock struct {
	Product
	OnHand       int64
	Reserved     int64
	Available    int64
	ReorderPoint int64
	ReorderQty   int64
	Location     *string
}

// LedgerEntryWithActor joins a ledger entry with the actor's display name.
type LedgerEntryWithActor struct {
	LedgerEntry
	CreatedByName *string
}

// AdjustInput describes a manual stock adjustment.
type AdjustInput struct {
	ProductID int64
	Type      TransactionType
	Delta     int64
	Notes     *string
	ActorID   int64
}

// ProductInput carries create/update fields for a product.
type ProductInput struct {
	SKU            string
	Name           string
	Description    *string
	Category       *string
	UnitPriceCents int64
	CostPriceCents int64
	Unit           string
	ReorderPoint   int64
	ReorderQty     int64
	Location       *string
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search   string
	Category string
}
