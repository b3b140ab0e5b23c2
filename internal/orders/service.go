package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service owns order creation and the lifecycle state machine. Every
// transition runs in one transaction together with its inventory side
// effects, so a failed reservation rolls back the status change too.
type Service struct {
	repo   Repository
	engine *inventory.Engine
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the orders service.
func NewService(repo Repository, engine *inventory.Engine, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, audit: audit, logger: logger, now: time.Now}
}

// Create prices the requested lines against current product prices and
// inserts the order in draft. No inventory is touched until the order
// is confirmed.
func (s *Service) Create(ctx context.Context, input CreateInput, actorID int64) (*OrderWithItems, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: order requires at least one item", shared.ErrValidation)
	}

	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, input.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("customer %d: %w", input.CustomerID, shared.ErrNotFound)
		}

		lines := make([]Item, 0, len(input.Items))
		for _, it := range input.Items {
			if it.Quantity <= 0 {
				return fmt.Errorf("%w: item quantity must be positive", shared.ErrValidation)
			}
			if it.DiscountPct < 0 || it.DiscountPct > 100 {
				return fmt.Errorf("%w: item discount must be between 0 and 100", shared.ErrValidation)
			}
			price, err := tx.ProductPrice(ctx, it.ProductID)
			if err != nil {
				return err
			}
			lines = append(lines, Item{
				ProductID:      it.ProductID,
				Quantity:       it.Quantity,
				UnitPriceCents: price,
				DiscountPct:    it.DiscountPct,
				LineTotalCents: LineTotal(price, it.Quantity, it.DiscountPct),
			})
		}
		subtotal, total := ComputeTotals(lines, input.DiscountCents, input.TaxCents)

		number, err := sequence.NewGenerator(tx.Sequences()).Next(ctx, sequence.NameOrder)
		if err != nil {
			return err
		}

		orderID, err = tx.Insert(ctx, Order{
			OrderNumber:     number,
			CustomerID:      input.CustomerID,
			Status:          StatusDraft,
			ShippingAddress: input.ShippingAddress,
			Notes:           input.Notes,
			SubtotalCents:   subtotal,
			DiscountCents:   input.DiscountCents,
			TaxCents:        input.TaxCents,
			TotalCents:      total,
			CreatedBy:       actorID,
		})
		if err != nil {
			return err
		}
		return tx.InsertItems(ctx, orderID, lines)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "order.created", orderID, nil)
	return s.repo.Get(ctx, orderID)
}

// Get returns one order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*OrderWithItems, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]OrderWithItems, shared.PageMeta, error) {
	out, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return out, shared.NewPageMeta(total, page), nil
}

// UpdateStatus fires a lifecycle transition. Illegal edges fail with
// InvalidTransition; inventory side effects run inside the same
// transaction as the status write, one item at a time, all-or-nothing.
func (s *Service) UpdateStatus(ctx context.Context, id int64, target Status, actorID int64) (*OrderWithItems, error) {
	if !ValidStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, target)
	}

	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		if !CanTransition(o.Status, target) {
			return TransitionError(o.Status, target)
		}

		items, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		store := tx.Inventory()
		switch target {
		case StatusConfirmed:
			o.OrderedAt = &now
			for _, it := range items {
				if err := s.engine.Reserve(ctx, store, it.ProductID, it.Quantity, o.ID, actorID); err != nil {
					return err
				}
			}
		case StatusShipped:
			o.ShippedAt = &now
			for _, it := range items {
				if err := s.engine.Deduct(ctx, store, it.ProductID, it.Quantity, o.ID, actorID); err != nil {
					return err
				}
			}
		case StatusDelivered:
			o.DeliveredAt = &now
		case StatusCancelled:
			o.CancelledAt = &now
			// a draft cancel reserved nothing, so only release after confirm
			if from == StatusConfirmed || from == StatusProcessing {
				for _, it := range items {
					if err := s.engine.Release(ctx, store, it.ProductID, it.Quantity, o.ID, actorID); err != nil {
						return err
					}
				}
			}
		}

		o.Status = target
		return tx.UpdateStatus(ctx, *o)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "order.status_changed", id, map[string]any{
		"from": string(from),
		"to":   string(target),
	})
	return s.repo.Get(ctx, id)
}

// Update edits a draft order. Header fields always apply; when items are
// supplied they replace the existing lines, otherwise the current lines
// are kept. Totals are recomputed either way. Any other status fails with
// EditNotAllowed.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput, actorID int64) (*OrderWithItems, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft {
			return fmt.Errorf("%w: order is %s", shared.ErrEditNotAllowed, o.Status)
		}

		var lines []Item
		if len(input.Items) == 0 {
			lines, err = tx.GetItems(ctx, id)
			if err != nil {
				return err
			}
		} else {
			lines = make([]Item, 0, len(input.Items))
			for _, it := range input.Items {
				if it.Quantity <= 0 {
					return fmt.Errorf("%w: item quantity must be positive", shared.ErrValidation)
				}
				if it.DiscountPct < 0 || it.DiscountPct > 100 {
					return fmt.Errorf("%w: item discount must be between 0 and 100", shared.ErrValidation)
				}
				price, err := tx.ProductPrice(ctx, it.ProductID)
				if err != nil {
					return err
				}
				lines = append(lines, Item{
					OrderID:        id,
					ProductID:      it.ProductID,
					Quantity:       it.Quantity,
					UnitPriceCents: price,
					DiscountPct:    it.DiscountPct,
					LineTotalCents: LineTotal(price, it.Quantity, it.DiscountPct),
				})
			}
			if err := tx.ReplaceItems(ctx, id, lines); err != nil {
				return err
			}
		}

		o.ShippingAddress = input.ShippingAddress
		o.Notes = input.Notes
		o.DiscountCents = input.DiscountCents
		o.TaxCents = input.TaxCents
		o.SubtotalCents, o.TotalCents = ComputeTotals(lines, input.DiscountCents, input.TaxCents)
		return tx.UpdateHeader(ctx, *o)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "order.updated", id, nil)
	return s.repo.Get(ctx, id)
}

// Delete hard-deletes a draft order. Draft is the only state with no
// inventory trace, so removal is safe.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft {
			return fmt.Errorf("%w: order is %s", shared.ErrDeleteNotAllowed, o.Status)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "order.deleted", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
