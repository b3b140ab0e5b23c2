package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// OrderSnapshot carries the order fields the generator copies.
type OrderSnapshot struct {
	ID            int64
	OrderNumber   string
	Status        string
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
}

// Repository persists invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*InvoiceWithOrder, error)
	List(ctx context.Context, page shared.Pagination) ([]InvoiceWithOrder, int, error)
}

// TxRepository is the write surface inside one unit of work.
type TxRepository interface {
	OrderSnapshotForUpdate(ctx context.Context, orderID int64) (*OrderSnapshot, error)
	ExistsForOrder(ctx context.Context, orderID int64) (bool, error)
	Insert(ctx context.Context, inv Invoice) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (*Invoice, error)
	Update(ctx context.Context, inv Invoice) error
	Sequences() sequence.Store
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{db: tx})
	})
}

const invoiceColumns = `
	i.id, i.invoice_number, i.order_id, i.status,
	i.subtotal_cents, i.discount_cents, i.tax_cents, i.total_cents, i.amount_paid_cents,
	i.due_date, i.sent_at, i.paid_at, i.created_by, i.created_at, i.updated_at`

func (r *pgRepository) Get(ctx context.Context, id int64) (*InvoiceWithOrder, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s, o.order_number, c.name
		FROM invoices i
		JOIN orders o ON o.id = i.order_id
		JOIN customers c ON c.id = o.customer_id
		WHERE i.id = $1`, invoiceColumns), id)
	var out InvoiceWithOrder
	err := row.Scan(&out.ID, &out.InvoiceNumber, &out.OrderID, &out.Status,
		&out.SubtotalCents, &out.DiscountCents, &out.TaxCents, &out.TotalCents, &out.AmountPaidCents,
		&out.DueDate, &out.SentAt, &out.PaidAt, &out.CreatedBy, &out.CreatedAt, &out.UpdatedAt,
		&out.OrderNumber, &out.CustomerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (r *pgRepository) List(ctx context.Context, page shared.Pagination) ([]InvoiceWithOrder, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM invoices").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, o.order_number, c.name
		FROM invoices i
		JOIN orders o ON o.id = i.order_id
		JOIN customers c ON c.id = o.customer_id
		ORDER BY i.created_at DESC LIMIT $1 OFFSET $2`, invoiceColumns),
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []InvoiceWithOrder
	for rows.Next() {
		var inv InvoiceWithOrder
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.OrderID, &inv.Status,
			&inv.SubtotalCents, &inv.DiscountCents, &inv.TaxCents, &inv.TotalCents, &inv.AmountPaidCents,
			&inv.DueDate, &inv.SentAt, &inv.PaidAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
			&inv.OrderNumber, &inv.CustomerName); err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

type txRepository struct {
	db db.DBTX
}

func (r *txRepository) Sequences() sequence.Store {
	return sequence.NewPGStore(r.db)
}

func (r *txRepository) OrderSnapshotForUpdate(ctx context.Context, orderID int64) (*OrderSnapshot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, order_number, status, subtotal_cents, discount_cents, tax_cents, total_cents
		FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	var s OrderSnapshot
	err := row.Scan(&s.ID, &s.OrderNumber, &s.Status,
		&s.SubtotalCents, &s.DiscountCents, &s.TaxCents, &s.TotalCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", orderID, shared.ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

func (r *txRepository) ExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE order_id = $1)`, orderID).Scan(&exists)
	return exists, err
}

func (r *txRepository) Insert(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, order_id, status,
			subtotal_cents, discount_cents, tax_cents, total_cents, amount_paid_cents,
			due_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		inv.InvoiceNumber, inv.OrderID, inv.Status,
		inv.SubtotalCents, inv.DiscountCents, inv.TaxCents, inv.TotalCents, inv.AmountPaidCents,
		inv.DueDate, inv.CreatedBy).Scan(&id)
	if err != nil {
		// unique index on order_id is the real one-to-one guard; the
		// lookup beforehand is only a fast path
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("invoice for order %d: %w", inv.OrderID, shared.ErrAlreadyExists)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, invoice_number, order_id, status,
		       subtotal_cents, discount_cents, tax_cents, total_cents, amount_paid_cents,
		       due_date, sent_at, paid_at, created_by, created_at, updated_at
		FROM invoices WHERE id = $1 FOR UPDATE`, id)
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.OrderID, &inv.Status,
		&inv.SubtotalCents, &inv.DiscountCents, &inv.TaxCents, &inv.TotalCents, &inv.AmountPaidCents,
		&inv.DueDate, &inv.SentAt, &inv.PaidAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &inv, nil
}

func (r *txRepository) Update(ctx context.Context, inv Invoice) error {
	_, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $1, amount_paid_cents = $2,
			sent_at = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $5`,
		inv.Status, inv.AmountPaidCents, inv.SentAt, inv.PaidAt, inv.ID)
	return err
}

var _ TxRepository = (*txRepository)(nil)
