package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists products, inventory records and the ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (*ProductWithStock, error)
	ListProducts(ctx context.Context, filter ListFilter, page shared.Pagination) ([]ProductWithStock, int, error)
	ListTransactions(ctx context.Context, productID int64) ([]LedgerEntryWithActor, error)
	LowStock(ctx context.Context) ([]ProductWithStock, error)
	Categories(ctx context.Context) ([]string, error)
}

// TxRepository exposes the write operations available inside a transaction.
// It satisfies Store so the engine can run against the same unit of work.
type TxRepository interface {
	Store
	InsertProduct(ctx context.Context, input ProductInput) (int64, error)
	InsertRecord(ctx context.Context, rec Record) error
	UpdateProduct(ctx context.Context, id int64, input ProductInput) error
	SoftDeleteProduct(ctx context.Context, id int64) error
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

const productColumns = `
	p.id, p.sku, p.name, p.description, p.category,
	p.unit_price_cents, p.cost_price_cents, p.unit,
	p.created_at, p.updated_at, p.deleted_at,
	COALESCE(i.quantity_on_hand, 0), COALESCE(i.quantity_reserved, 0),
	COALESCE(i.quantity_on_hand, 0) - COALESCE(i.quantity_reserved, 0),
	COALESCE(i.reorder_point, 0), COALESCE(i.reorder_quantity, 0), i.location`

func (r *pgRepository) GetProduct(ctx context.Context, id int64) (*ProductWithStock, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM products p
		LEFT JOIN inventory i ON i.product_id = p.id
		WHERE p.id = $1 AND p.deleted_at IS NULL`, productColumns), id)
	p, err := scanProductWithStock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

func (r *pgRepository) ListProducts(ctx context.Context, filter ListFilter, page shared.Pagination) ([]ProductWithStock, int, error) {
	where := "WHERE p.deleted_at IS NULL"
	args := []any{}
	argPos := 1
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (p.name ILIKE $%d OR p.sku ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	if filter.Category != "" {
		where += fmt.Sprintf(" AND p.category = $%d", argPos)
		args = append(args, filter.Category)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM products p %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM products p
		LEFT JOIN inventory i ON i.product_id = p.id
		%s ORDER BY p.name ASC LIMIT $%d OFFSET $%d`, productColumns, where, argPos, argPos+1)
	args = append(args, page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []ProductWithStock
	for rows.Next() {
		p, err := scanProductWithStock(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

func (r *pgRepository) ListTransactions(ctx context.Context, productID int64) ([]LedgerEntryWithActor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.product_id, t.transaction_type, t.quantity_change,
		       t.reference_type, t.reference_id, t.notes, t.created_by, t.created_at,
		       u.name
		FROM inventory_transactions t
		LEFT JOIN users u ON u.id = t.created_by
		WHERE t.product_id = $1
		ORDER BY t.created_at DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntryWithActor
	for rows.Next() {
		var e LedgerEntryWithActor
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Type, &e.QuantityDelta,
			&e.ReferenceType, &e.ReferenceID, &e.Notes, &e.CreatedBy, &e.CreatedAt,
			&e.CreatedByName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *pgRepository) LowStock(ctx context.Context) ([]ProductWithStock, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM products p
		JOIN inventory i ON i.product_id = p.id
		WHERE p.deleted_at IS NULL AND i.quantity_on_hand <= i.reorder_point
		ORDER BY (i.quantity_on_hand - i.reorder_point) ASC`, productColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ProductWithStock
	for rows.Next() {
		p, err := scanProductWithStock(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *pgRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT category FROM products
		WHERE category IS NOT NULL AND deleted_at IS NULL
		ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

type txRepository struct {
	db db.DBTX
}

// NewTxStore wraps an existing transaction handle as a Store so sibling
// modules (orders, supply chain) can drive the engine inside their own
// units of work.
func NewTxStore(q db.DBTX) Store {
	return &txRepository{db: q}
}

func (r *txRepository) GetRecordForUpdate(ctx context.Context, productID int64) (Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT product_id, quantity_on_hand, quantity_reserved, reorder_point, reorder_quantity, location, updated_at
		FROM inventory WHERE product_id = $1 FOR UPDATE`, productID)
	var rec Record
	err := row.Scan(&rec.ProductID, &rec.OnHand, &rec.Reserved, &rec.ReorderPoint, &rec.ReorderQty, &rec.Location, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("inventory record for product %d: %w", productID, shared.ErrNotFound)
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *txRepository) UpdateQuantities(ctx context.Context, productID, onHand, reserved int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE inventory SET quantity_on_hand = $1, quantity_reserved = $2, updated_at = NOW()
		WHERE product_id = $3`, onHand, reserved, productID)
	return err
}

func (r *txRepository) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO inventory_transactions
			(product_id, transaction_type, quantity_change, reference_type, reference_id, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ProductID, entry.Type, entry.QuantityDelta,
		entry.ReferenceType, entry.ReferenceID, entry.Notes, entry.CreatedBy)
	return err
}

func (r *txRepository) InsertProduct(ctx context.Context, input ProductInput) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (sku, name, description, category, unit_price_cents, cost_price_cents, unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		input.SKU, input.Name, input.Description, input.Category,
		input.UnitPriceCents, input.CostPriceCents, input.Unit).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("sku %q: %w", input.SKU, shared.ErrAlreadyExists)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) InsertRecord(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO inventory (product_id, quantity_on_hand, quantity_reserved, reorder_point, reorder_quantity, location)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ProductID, rec.OnHand, rec.Reserved, rec.ReorderPoint, rec.ReorderQty, rec.Location)
	return err
}

func (r *txRepository) UpdateProduct(ctx context.Context, id int64, input ProductInput) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET sku = $1, name = $2, description = $3, category = $4,
			unit_price_cents = $5, cost_price_cents = $6, unit = $7, updated_at = NOW()
		WHERE id = $8 AND deleted_at IS NULL`,
		input.SKU, input.Name, input.Description, input.Category,
		input.UnitPriceCents, input.CostPriceCents, input.Unit, id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("sku %q: %w", input.SKU, shared.ErrAlreadyExists)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	_, err = r.db.Exec(ctx, `
		UPDATE inventory SET reorder_point = $1, reorder_quantity = $2, location = $3, updated_at = NOW()
		WHERE product_id = $4`,
		input.ReorderPoint, input.ReorderQty, input.Location, id)
	return err
}

func (r *txRepository) SoftDeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProductWithStock(row rowScanner) (*ProductWithStock, error) {
	var p ProductWithStock
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category,
		&p.UnitPriceCents, &p.CostPriceCents, &p.Unit,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
		&p.OnHand, &p.Reserved, &p.Available,
		&p.ReorderPoint, &p.ReorderQty, &p.Location)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ TxRepository = (*txRepository)(nil)
