package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// net-30 payment terms
const paymentTermDays = 30

// orderReady lists the order statuses an invoice may be generated from.
var orderReady = map[string]bool{
	"confirmed":  true,
	"processing": true,
	"shipped":    true,
	"delivered":  true,
}

// Service derives invoices from orders and tracks payment status.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the invoices service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// GenerateFromOrder creates the order's invoice, copying the computed
// totals verbatim. At most one invoice exists per order.
func (s *Service) GenerateFromOrder(ctx context.Context, orderID, actorID int64) (*InvoiceWithOrder, error) {
	var invoiceID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.OrderSnapshotForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !orderReady[order.Status] {
			return fmt.Errorf("%w: order %s is %s", shared.ErrOrderNotReady, order.OrderNumber, order.Status)
		}

		exists, err := tx.ExistsForOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("invoice for order %d: %w", orderID, shared.ErrAlreadyExists)
		}

		number, err := sequence.NewGenerator(tx.Sequences()).Next(ctx, sequence.NameInvoice)
		if err != nil {
			return err
		}

		invoiceID, err = tx.Insert(ctx, Invoice{
			InvoiceNumber: number,
			OrderID:       orderID,
			Status:        StatusDraft,
			SubtotalCents: order.SubtotalCents,
			DiscountCents: order.DiscountCents,
			TaxCents:      order.TaxCents,
			TotalCents:    order.TotalCents,
			DueDate:       s.now().UTC().AddDate(0, 0, paymentTermDays),
			CreatedBy:     actorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.generated", invoiceID, map[string]any{"order_id": orderID})
	return s.repo.Get(ctx, invoiceID)
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, id int64) (*InvoiceWithOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of invoices, newest first.
func (s *Service) List(ctx context.Context, page shared.Pagination) ([]InvoiceWithOrder, shared.PageMeta, error) {
	out, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return out, shared.NewPageMeta(total, page), nil
}

// UpdateStatus sets the payment status. sent and paid stamp their
// timestamps the first time they are reached; amount paid may accompany
// any status.
func (s *Service) UpdateStatus(ctx context.Context, id int64, input StatusInput, actorID int64) (*InvoiceWithOrder, error) {
	if !ValidStatus(input.Status) {
		return nil, fmt.Errorf("%w: unknown invoice status %q", shared.ErrValidation, input.Status)
	}
	if input.AmountPaidCents != nil && *input.AmountPaidCents < 0 {
		return nil, fmt.Errorf("%w: amount paid must not be negative", shared.ErrValidation)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		inv.Status = input.Status
		if input.Status == StatusSent && inv.SentAt == nil {
			inv.SentAt = &now
		}
		if input.Status == StatusPaid {
			if inv.PaidAt == nil {
				inv.PaidAt = &now
			}
			if input.AmountPaidCents == nil {
				inv.AmountPaidCents = inv.TotalCents
			}
		}
		if input.AmountPaidCents != nil {
			inv.AmountPaidCents = *input.AmountPaidCents
		}
		return tx.Update(ctx, *inv)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.status_changed", id, map[string]any{"to": string(input.Status)})
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
