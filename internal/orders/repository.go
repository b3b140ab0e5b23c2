package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists orders and their line items.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*OrderWithItems, error)
	List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]OrderWithItems, int, error)
}

// TxRepository is the write surface inside one unit of work. Inventory
// and Sequences expose sibling stores bound to the same transaction so
// a status transition commits counters, ledger and order atomically.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	GetItems(ctx context.Context, orderID int64) ([]Item, error)
	ProductPrice(ctx context.Context, productID int64) (int64, error)
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
	Insert(ctx context.Context, o Order) (int64, error)
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	UpdateHeader(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, o Order) error
	ReplaceItems(ctx context.Context, orderID int64, items []Item) error
	Delete(ctx context.Context, id int64) error
	Inventory() inventory.Store
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

const orderColumns = `
	o.id, o.order_number, o.customer_id, o.status, o.shipping_address, o.notes,
	o.subtotal_cents, o.discount_cents, o.tax_cents, o.total_cents,
	o.ordered_at, o.shipped_at, o.delivered_at, o.cancelled_at,
	o.created_by, o.created_at, o.updated_at`

func (r *pgRepository) Get(ctx context.Context, id int64) (*OrderWithItems, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s, c.name FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1`, orderColumns), id)

	var out OrderWithItems
	if err := scanOrder(row, &out.Order, &out.CustomerName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}

	items, err := r.itemDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return &out, nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]OrderWithItems, int, error) {
	where := "WHERE TRUE"
	args := []any{}
	argPos := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND o.status = $%d", argPos)
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.CustomerID != 0 {
		where += fmt.Sprintf(" AND o.customer_id = $%d", argPos)
		args = append(args, filter.CustomerID)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM orders o %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s, c.name FROM orders o
		JOIN customers c ON c.id = o.customer_id
		%s ORDER BY o.created_at DESC LIMIT $%d OFFSET $%d`, orderColumns, where, argPos, argPos+1)
	args = append(args, page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []OrderWithItems
	for rows.Next() {
		var o OrderWithItems
		if err := scanOrder(rows, &o.Order, &o.CustomerName); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		items, err := r.itemDetails(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Items = items
	}
	return out, total, nil
}

func (r *pgRepository) itemDetails(ctx context.Context, orderID int64) ([]ItemDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.quantity, i.unit_price_cents, i.discount_pct, i.line_total_cents,
		       p.name, p.sku
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemDetail
	for rows.Next() {
		var d ItemDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity,
			&d.UnitPriceCents, &d.DiscountPct, &d.LineTotalCents,
			&d.ProductName, &d.ProductSKU); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

type txRepository struct {
	db db.DBTX
}

func (r *txRepository) Inventory() inventory.Store {
	return inventory.NewTxStore(r.db)
}

func (r *txRepository) Sequences() sequence.Store {
	return sequence.NewPGStore(r.db)
}

func (r *txRepository) ProductPrice(ctx context.Context, productID int64) (int64, error) {
	var price int64
	err := r.db.QueryRow(ctx, `
		SELECT unit_price_cents FROM products
		WHERE id = $1 AND deleted_at IS NULL`, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
		}
		return 0, err
	}
	return price, nil
}

func (r *txRepository) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND deleted_at IS NULL)`, customerID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, shipping_address, notes,
		       subtotal_cents, discount_cents, tax_cents, total_cents,
		       ordered_at, shipped_at, delivered_at, cancelled_at,
		       created_by, created_at, updated_at
		FROM orders WHERE id = $1 FOR UPDATE`, id)
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.ShippingAddress, &o.Notes,
		&o.SubtotalCents, &o.DiscountCents, &o.TaxCents, &o.TotalCents,
		&o.OrderedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}

func (r *txRepository) GetItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents, discount_pct, line_total_cents
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity,
			&it.UnitPriceCents, &it.DiscountPct, &it.LineTotalCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepository) Insert(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (order_number, customer_id, status, shipping_address, notes,
			subtotal_cents, discount_cents, tax_cents, total_cents, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		o.OrderNumber, o.CustomerID, o.Status, o.ShippingAddress, o.Notes,
		o.SubtotalCents, o.DiscountCents, o.TaxCents, o.TotalCents, o.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItems(ctx context.Context, orderID int64, items []Item) error {
	for _, it := range items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents, discount_pct, line_total_cents)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, it.ProductID, it.Quantity, it.UnitPriceCents, it.DiscountPct, it.LineTotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdateHeader(ctx context.Context, o Order) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET shipping_address = $1, notes = $2,
			subtotal_cents = $3, discount_cents = $4, tax_cents = $5, total_cents = $6,
			updated_at = NOW()
		WHERE id = $7`,
		o.ShippingAddress, o.Notes,
		o.SubtotalCents, o.DiscountCents, o.TaxCents, o.TotalCents, o.ID)
	return err
}

func (r *txRepository) UpdateStatus(ctx context.Context, o Order) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $1,
			ordered_at = $2, shipped_at = $3, delivered_at = $4, cancelled_at = $5,
			updated_at = NOW()
		WHERE id = $6`,
		o.Status, o.OrderedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.ID)
	return err
}

func (r *txRepository) ReplaceItems(ctx context.Context, orderID int64, items []Item) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	return r.InsertItems(ctx, orderID, items)
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	// order_items cascade on delete
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, o *Order, customerName *string) error {
	return row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.ShippingAddress, &o.Notes,
		&o.SubtotalCents, &o.DiscountCents, &o.TaxCents, &o.TotalCents,
		&o.OrderedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, customerName)
}

var _ TxRepository = (*txRepository)(nil)
