package inventory

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Store is the transaction-scoped persistence surface the engine mutates
// through. Callers obtain one from their own ambient transaction so a
// multi-item workflow commits or rolls back as a single unit; the engine
// never begins or commits transactions itself.
type Store interface {
	// GetRecordForUpdate reads the inventory record and locks the row for
	// the remainder of the transaction.
	GetRecordForUpdate(ctx context.Context, productID int64) (Record, error)
	UpdateQuantities(ctx context.Context, productID, onHand, reserved int64) error
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error
}

// Engine owns every mutation of inventory counters. Each primitive
// performs one counter update paired with exactly one ledger entry.
type Engine struct{}

// NewEngine constructs the Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Adjust applies a manual delta to on-hand stock. Only the manual
// transaction types are accepted here; sales and receipts go through
// Deduct and Receive so their references stay consistent.
func (e *Engine) Adjust(ctx context.Context, st Store, input AdjustInput) (Record, error) {
	switch input.Type {
	case TransactionTypeAdjustment, TransactionTypeReturn, TransactionTypeWriteOff:
	default:
		return Record{}, fmt.Errorf("%w: transaction type %q not allowed for adjustment", shared.ErrValidation, input.Type)
	}
	if input.Delta == 0 {
		return Record{}, fmt.Errorf("%w: quantity change must be non-zero", shared.ErrValidation)
	}

	rec, err := st.GetRecordForUpdate(ctx, input.ProductID)
	if err != nil {
		return Record{}, err
	}

	newOnHand := rec.OnHand + input.Delta
	if newOnHand < 0 {
		return Record{}, fmt.Errorf("%w: on hand %d, adjustment %d", shared.ErrInsufficientStock, rec.OnHand, input.Delta)
	}

	if err := st.UpdateQuantities(ctx, input.ProductID, newOnHand, rec.Reserved); err != nil {
		return Record{}, err
	}
	if err := st.InsertLedgerEntry(ctx, LedgerEntry{
		ProductID:     input.ProductID,
		Type:          input.Type,
		QuantityDelta: input.Delta,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
	}); err != nil {
		return Record{}, err
	}

	rec.OnHand = newOnHand
	return rec, nil
}

// Reserve allocates on-hand stock to a confirmed order. No upper bound
// against on-hand is checked here: callers own the decision to confirm,
// and the ledger records the allocation either way.
func (e *Engine) Reserve(ctx context.Context, st Store, productID, qty, orderID, actorID int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity must be positive", shared.ErrValidation)
	}
	rec, err := st.GetRecordForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if err := st.UpdateQuantities(ctx, productID, rec.OnHand, rec.Reserved+qty); err != nil {
		return err
	}
	return st.InsertLedgerEntry(ctx, LedgerEntry{
		ProductID:     productID,
		Type:          TransactionTypeAdjustment,
		QuantityDelta: -qty,
		ReferenceType: refType(ReferenceOrder),
		ReferenceID:   &orderID,
		Notes:         strPtr("Reserved for order"),
		CreatedBy:     actorID,
	})
}

// Release returns a reservation to available stock, clamping at zero so
// an over-release is absorbed rather than erroring.
func (e *Engine) Release(ctx context.Context, st Store, productID, qty, orderID, actorID int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: release quantity must be positive", shared.ErrValidation)
	}
	rec, err := st.GetRecordForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	newReserved := rec.Reserved - qty
	if newReserved < 0 {
		newReserved = 0
	}
	if err := st.UpdateQuantities(ctx, productID, rec.OnHand, newReserved); err != nil {
		return err
	}
	return st.InsertLedgerEntry(ctx, LedgerEntry{
		ProductID:     productID,
		Type:          TransactionTypeAdjustment,
		QuantityDelta: qty,
		ReferenceType: refType(ReferenceOrder),
		ReferenceID:   &orderID,
		Notes:         strPtr("Reservation released (order cancelled)"),
		CreatedBy:     actorID,
	})
}

// Deduct removes shipped stock and clears its reservation in one step.
func (e *Engine) Deduct(ctx context.Context, st Store, productID, qty, orderID, actorID int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: deduct quantity must be positive", shared.ErrValidation)
	}
	rec, err := st.GetRecordForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	newReserved := rec.Reserved - qty
	if newReserved < 0 {
		newReserved = 0
	}
	if err := st.UpdateQuantities(ctx, productID, rec.OnHand-qty, newReserved); err != nil {
		return err
	}
	return st.InsertLedgerEntry(ctx, LedgerEntry{
		ProductID:     productID,
		Type:          TransactionTypeSale,
		QuantityDelta: -qty,
		ReferenceType: refType(ReferenceOrder),
		ReferenceID:   &orderID,
		Notes:         strPtr("Sold / shipped"),
		CreatedBy:     actorID,
	})
}

// Receive adds stock delivered against a purchase order.
func (e *Engine) Receive(ctx context.Context, st Store, productID, qty, poID, actorID int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: receive quantity must be positive", shared.ErrValidation)
	}
	rec, err := st.GetRecordForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if err := st.UpdateQuantities(ctx, productID, rec.OnHand+qty, rec.Reserved); err != nil {
		return err
	}
	return st.InsertLedgerEntry(ctx, LedgerEntry{
		ProductID:     productID,
		Type:          TransactionTypePurchaseReceipt,
		QuantityDelta: qty,
		ReferenceType: refType(ReferencePurchaseOrder),
		ReferenceID:   &poID,
		Notes:         strPtr("Received from PO"),
		CreatedBy:     actorID,
	})
}

func refType(t ReferenceType) *ReferenceType {
	return &t
}

func strPtr(s string) *string {
	return &s
}
