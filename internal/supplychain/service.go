package supplychain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/orders"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// OrderTransitions is the slice of the orders service the shipment flow
// needs: firing shipped -> delivered when a shipment lands.
type OrderTransitions interface {
	UpdateStatus(ctx context.Context, id int64, target orders.Status, actorID int64) (*orders.OrderWithItems, error)
}

// Service owns suppliers, the purchase order lifecycle and shipments.
type Service struct {
	repo        Repository
	engine      *inventory.Engine
	orderStatus OrderTransitions
	audit       *shared.AuditLogger
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires the supply chain service.
func NewService(repo Repository, engine *inventory.Engine, orderStatus OrderTransitions, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, orderStatus: orderStatus, audit: audit, logger: logger, now: time.Now}
}

// CreateSupplier adds a vendor.
func (s *Service) CreateSupplier(ctx context.Context, input SupplierInput, actorID int64) (*Supplier, error) {
	sup, err := s.repo.CreateSupplier(ctx, input)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "supplier.created", "supplier", sup.ID, nil)
	return sup, nil
}

// GetSupplier returns one active supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (*Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers returns a filtered page of suppliers.
func (s *Service) ListSuppliers(ctx context.Context, search string, page shared.Pagination) ([]Supplier, shared.PageMeta, error) {
	out, total, err := s.repo.ListSuppliers(ctx, search, page)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return out, shared.NewPageMeta(total, page), nil
}

// UpdateSupplier replaces the supplier's mutable fields.
func (s *Service) UpdateSupplier(ctx context.Context, id int64, input SupplierInput, actorID int64) (*Supplier, error) {
	sup, err := s.repo.UpdateSupplier(ctx, id, input)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "supplier.updated", "supplier", id, nil)
	return sup, nil
}

// DeleteSupplier soft-deletes a supplier.
func (s *Service) DeleteSupplier(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.SoftDeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "supplier.deleted", "supplier", id, nil)
	return nil
}

// ListSupplierProducts returns the supplier's sourcing catalog.
func (s *Service) ListSupplierProducts(ctx context.Context, supplierID int64) ([]SupplierProductDetail, error) {
	if _, err := s.repo.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}
	return s.repo.ListSupplierProducts(ctx, supplierID)
}

// LinkSupplierProduct adds or replaces a catalog entry for the supplier.
func (s *Service) LinkSupplierProduct(ctx context.Context, sp SupplierProduct, actorID int64) ([]SupplierProductDetail, error) {
	if _, err := s.repo.GetSupplier(ctx, sp.SupplierID); err != nil {
		return nil, err
	}
	if sp.MinOrderQuantity < 1 {
		sp.MinOrderQuantity = 1
	}
	if err := s.repo.UpsertSupplierProduct(ctx, sp); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "supplier.product_linked", "supplier", sp.SupplierID,
		map[string]any{"product_id": sp.ProductID})
	return s.repo.ListSupplierProducts(ctx, sp.SupplierID)
}

// UnlinkSupplierProduct removes a catalog entry.
func (s *Service) UnlinkSupplierProduct(ctx context.Context, supplierID, productID int64, actorID int64) error {
	if err := s.repo.RemoveSupplierProduct(ctx, supplierID, productID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "supplier.product_unlinked", "supplier", supplierID,
		map[string]any{"product_id": productID})
	return nil
}

// CreatePO creates a draft purchase order. Lines have no discount
// concept: line total is quantity times unit cost.
func (s *Service) CreatePO(ctx context.Context, input POCreateInput, actorID int64) (*POWithItems, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase order requires at least one item", shared.ErrValidation)
	}

	var poID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.SupplierExists(ctx, input.SupplierID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("supplier %d: %w", input.SupplierID, shared.ErrNotFound)
		}

		var total int64
		lines := make([]POItem, 0, len(input.Items))
		for _, it := range input.Items {
			if it.QuantityOrdered <= 0 {
				return fmt.Errorf("%w: ordered quantity must be positive", shared.ErrValidation)
			}
			if it.UnitCostCents < 0 {
				return fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
			}
			ok, err := tx.ProductExists(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("product %d: %w", it.ProductID, shared.ErrNotFound)
			}
			lineTotal := it.QuantityOrdered * it.UnitCostCents
			total += lineTotal
			lines = append(lines, POItem{
				ProductID:       it.ProductID,
				QuantityOrdered: it.QuantityOrdered,
				UnitCostCents:   it.UnitCostCents,
				LineTotalCents:  lineTotal,
			})
		}

		number, err := sequence.NewGenerator(tx.Sequences()).Next(ctx, sequence.NamePO)
		if err != nil {
			return err
		}

		poID, err = tx.InsertPO(ctx, PurchaseOrder{
			PONumber:     number,
			SupplierID:   input.SupplierID,
			Status:       POStatusDraft,
			ExpectedDate: input.ExpectedDate,
			Notes:        input.Notes,
			TotalCents:   total,
			CreatedBy:    actorID,
		})
		if err != nil {
			return err
		}
		return tx.InsertPOItems(ctx, poID, lines)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "purchase_order.created", "purchase_order", poID, nil)
	return s.repo.GetPO(ctx, poID)
}

// GetPO returns one purchase order with its lines.
func (s *Service) GetPO(ctx context.Context, id int64) (*POWithItems, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPOs returns a filtered page of purchase orders.
func (s *Service) ListPOs(ctx context.Context, filter POListFilter, page shared.Pagination) ([]POWithItems, shared.PageMeta, error) {
	out, total, err := s.repo.ListPOs(ctx, filter, page)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return out, shared.NewPageMeta(total, page), nil
}

// SetPOStatus sets a non-derived status (send, confirm, cancel).
// partial and received are derived from receipts and cannot be set here.
func (s *Service) SetPOStatus(ctx context.Context, id int64, target POStatus, actorID int64) (*POWithItems, error) {
	if !ValidPOStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, target)
	}
	if target == POStatusPartial || target == POStatusReceived {
		return nil, fmt.Errorf("%w: status %s is derived from receipts", shared.ErrValidation, target)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanSetStatus(po.Status, target) {
			return POTransitionError(po.Status, target)
		}
		po.Status = target
		return tx.UpdatePO(ctx, *po)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "purchase_order.status_changed", "purchase_order", id, map[string]any{"to": string(target)})
	return s.repo.GetPO(ctx, id)
}

// Receive books received quantities against PO lines, adds the stock
// through the engine and re-derives the PO status by scanning every
// line. All receipts in the call share one transaction.
func (s *Service) Receive(ctx context.Context, id int64, receipts []ReceiptLine, actorID int64) (*POWithItems, error) {
	if len(receipts) == 0 {
		return nil, fmt.Errorf("%w: receipt requires at least one line", shared.ErrValidation)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if po.Status == POStatusCancelled || po.Status == POStatusReceived {
			return fmt.Errorf("%w: purchase order is %s", shared.ErrInvalidTransition, po.Status)
		}

		items, err := tx.GetPOItems(ctx, id)
		if err != nil {
			return err
		}
		byID := make(map[int64]POItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}

		store := tx.Inventory()
		for _, rc := range receipts {
			if rc.QuantityReceived <= 0 {
				return fmt.Errorf("%w: received quantity must be positive", shared.ErrValidation)
			}
			item, ok := byID[rc.ItemID]
			if !ok {
				return fmt.Errorf("purchase order item %d: %w", rc.ItemID, shared.ErrNotFound)
			}
			if err := tx.AddReceivedQuantity(ctx, rc.ItemID, rc.QuantityReceived); err != nil {
				return err
			}
			if err := s.engine.Receive(ctx, store, item.ProductID, rc.QuantityReceived, po.ID, actorID); err != nil {
				return err
			}
		}

		// re-read lines and recompute from scratch
		items, err = tx.GetPOItems(ctx, id)
		if err != nil {
			return err
		}
		po.Status = DeriveStatus(items, po.Status)
		if po.Status == POStatusReceived && po.ReceivedAt == nil {
			now := s.now().UTC()
			po.ReceivedAt = &now
		}
		return tx.UpdatePO(ctx, *po)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "purchase_order.received", "purchase_order", id, nil)
	return s.repo.GetPO(ctx, id)
}

// CreateShipment registers an outbound shipment for a shipped order.
func (s *Service) CreateShipment(ctx context.Context, input ShipmentInput, actorID int64) (*Shipment, error) {
	var shipmentID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.OrderStatus(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if status != string(orders.StatusShipped) {
			return fmt.Errorf("%w: order is %s", shared.ErrOrderNotReady, status)
		}

		number, err := sequence.NewGenerator(tx.Sequences()).Next(ctx, sequence.NameShipment)
		if err != nil {
			return err
		}
		shipmentID, err = tx.InsertShipment(ctx, Shipment{
			ShipmentNumber:    number,
			OrderID:           input.OrderID,
			Carrier:           input.Carrier,
			TrackingNumber:    input.TrackingNumber,
			Status:            ShipmentPending,
			EstimatedDelivery: input.EstimatedDelivery,
			Notes:             input.Notes,
			CreatedBy:         actorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "shipment.created", "shipment", shipmentID, map[string]any{"order_id": input.OrderID})
	return s.repo.GetShipment(ctx, shipmentID)
}

// GetShipment returns one shipment.
func (s *Service) GetShipment(ctx context.Context, id int64) (*Shipment, error) {
	return s.repo.GetShipment(ctx, id)
}

// ListShipments returns a page of shipments, optionally scoped to an order.
func (s *Service) ListShipments(ctx context.Context, orderID int64, page shared.Pagination) ([]Shipment, shared.PageMeta, error) {
	out, total, err := s.repo.ListShipments(ctx, orderID, page)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return out, shared.NewPageMeta(total, page), nil
}

// SetShipmentStatus updates a shipment. Marking it delivered stamps the
// timestamp and moves the parent order to delivered.
func (s *Service) SetShipmentStatus(ctx context.Context, id int64, target ShipmentStatus, actorID int64) (*Shipment, error) {
	if !ValidShipmentStatus(target) {
		return nil, fmt.Errorf("%w: unknown shipment status %q", shared.ErrValidation, target)
	}

	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.GetShipmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		sh.Status = target
		now := s.now().UTC()
		if (target == ShipmentDispatched || target == ShipmentInTransit) && sh.ShippedAt == nil {
			sh.ShippedAt = &now
		}
		if target == ShipmentDelivered && sh.DeliveredAt == nil {
			sh.DeliveredAt = &now
			orderID = sh.OrderID
		}
		return tx.UpdateShipment(ctx, *sh)
	})
	if err != nil {
		return nil, err
	}

	if orderID != 0 && s.orderStatus != nil {
		// a second shipment for an already delivered order is tolerated
		if _, err := s.orderStatus.UpdateStatus(ctx, orderID, orders.StatusDelivered, actorID); err != nil &&
			!errors.Is(err, shared.ErrInvalidTransition) {
			return nil, err
		}
	}

	s.recordAudit(ctx, actorID, "shipment.status_changed", "shipment", id, map[string]any{"to": string(target)})
	return s.repo.GetShipment(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
