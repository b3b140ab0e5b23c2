package supplychain

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

// Repository persists suppliers, purchase orders and shipments.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	CreateSupplier(ctx context.Context, input SupplierInput) (*Supplier, error)
	GetSupplier(ctx context.Context, id int64) (*Supplier, error)
	ListSuppliers(ctx context.Context, search string, page shared.Pagination) ([]Supplier, int, error)
	UpdateSupplier(ctx context.Context, id int64, input SupplierInput) (*Supplier, error)
	SoftDeleteSupplier(ctx context.Context, id int64) error

	ListSupplierProducts(ctx context.Context, supplierID int64) ([]SupplierProductDetail, error)
	UpsertSupplierProduct(ctx context.Context, sp SupplierProduct) error
	RemoveSupplierProduct(ctx context.Context, supplierID, productID int64) error

	GetPO(ctx context.Context, id int64) (*POWithItems, error)
	ListPOs(ctx context.Context, filter POListFilter, page shared.Pagination) ([]POWithItems, int, error)

	GetShipment(ctx context.Context, id int64) (*Shipment, error)
	ListShipments(ctx context.Context, orderID int64, page shared.Pagination) ([]Shipment, int, error)
}

// TxRepository is the write surface inside one unit of work.
type TxRepository interface {
	SupplierExists(ctx context.Context, supplierID int64) (bool, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)

	GetPOForUpdate(ctx context.Context, id int64) (*PurchaseOrder, error)
	GetPOItems(ctx context.Context, poID int64) ([]POItem, error)
	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOItems(ctx context.Context, poID int64, items []POItem) error
	UpdatePO(ctx context.Context, po PurchaseOrder) error
	AddReceivedQuantity(ctx context.Context, itemID, delta int64) error

	OrderStatus(ctx context.Context, orderID int64) (string, error)
	InsertShipment(ctx context.Context, s Shipment) (int64, error)
	GetShipmentForUpdate(ctx context.Context, id int64) (*Shipment, error)
	UpdateShipment(ctx context.Context, s Shipment) error

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

const supplierColumns = `id, name, contact_name, email, phone, address, payment_terms, notes, created_at, updated_at, deleted_at`

func (r *pgRepository) CreateSupplier(ctx context.Context, input SupplierInput) (*Supplier, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO suppliers (name, contact_name, email, phone, address, payment_terms, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, supplierColumns),
		input.Name, input.ContactName, input.Email, input.Phone, input.Address, input.PaymentTerms, input.Notes)
	s, err := scanSupplier(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("supplier %q: %w", input.Name, shared.ErrAlreadyExists)
		}
		return nil, err
	}
	return s, nil
}

func (r *pgRepository) GetSupplier(ctx context.Context, id int64) (*Supplier, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM suppliers WHERE id = $1 AND deleted_at IS NULL`, supplierColumns), id)
	s, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

func (r *pgRepository) ListSuppliers(ctx context.Context, search string, page shared.Pagination) ([]Supplier, int, error) {
	where := "WHERE deleted_at IS NULL"
	args := []any{}
	if search != "" {
		where += " AND (name ILIKE $1 OR contact_name ILIKE $1)"
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM suppliers %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM suppliers %s
		ORDER BY name ASC LIMIT $%d OFFSET $%d`, supplierColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) UpdateSupplier(ctx context.Context, id int64, input SupplierInput) (*Supplier, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE suppliers SET name = $1, contact_name = $2, email = $3, phone = $4,
			address = $5, payment_terms = $6, notes = $7, updated_at = NOW()
		WHERE id = $8 AND deleted_at IS NULL
		RETURNING %s`, supplierColumns),
		input.Name, input.ContactName, input.Email, input.Phone, input.Address, input.PaymentTerms, input.Notes, id)
	s, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

func (r *pgRepository) SoftDeleteSupplier(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE suppliers SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) ListSupplierProducts(ctx context.Context, supplierID int64) ([]SupplierProductDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sp.supplier_id, sp.product_id, sp.supplier_sku, sp.cost_price_cents,
		       sp.lead_time_days, sp.min_order_quantity, sp.is_preferred,
		       p.name, p.sku
		FROM supplier_products sp
		JOIN products p ON p.id = sp.product_id
		WHERE sp.supplier_id = $1
		ORDER BY p.name ASC`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SupplierProductDetail
	for rows.Next() {
		var d SupplierProductDetail
		if err := rows.Scan(&d.SupplierID, &d.ProductID, &d.SupplierSKU, &d.CostPriceCents,
			&d.LeadTimeDays, &d.MinOrderQuantity, &d.IsPreferred,
			&d.ProductName, &d.ProductSKU); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpsertSupplierProduct(ctx context.Context, sp SupplierProduct) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO supplier_products
			(supplier_id, product_id, supplier_sku, cost_price_cents, lead_time_days, min_order_quantity, is_preferred)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (supplier_id, product_id) DO UPDATE SET
			supplier_sku = EXCLUDED.supplier_sku,
			cost_price_cents = EXCLUDED.cost_price_cents,
			lead_time_days = EXCLUDED.lead_time_days,
			min_order_quantity = EXCLUDED.min_order_quantity,
			is_preferred = EXCLUDED.is_preferred`,
		sp.SupplierID, sp.ProductID, sp.SupplierSKU, sp.CostPriceCents,
		sp.LeadTimeDays, sp.MinOrderQuantity, sp.IsPreferred)
	if err != nil && db.IsForeignKeyViolation(err) {
		return fmt.Errorf("product %d: %w", sp.ProductID, shared.ErrNotFound)
	}
	return err
}

func (r *pgRepository) RemoveSupplierProduct(ctx context.Context, supplierID, productID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM supplier_products WHERE supplier_id = $1 AND product_id = $2`,
		supplierID, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("supplier %d product %d: %w", supplierID, productID, shared.ErrNotFound)
	}
	return nil
}

const poColumns = `
	po.id, po.po_number, po.supplier_id, po.status, po.expected_date, po.notes,
	po.total_cents, po.received_at, po.created_by, po.created_at, po.updated_at`

func (r *pgRepository) GetPO(ctx context.Context, id int64) (*POWithItems, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s, s.name FROM purchase_orders po
		JOIN suppliers s ON s.id = po.supplier_id
		WHERE po.id = $1`, poColumns), id)

	var out POWithItems
	if err := scanPO(row, &out.PurchaseOrder, &out.SupplierName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}

	items, err := r.poItemDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return &out, nil
}

func (r *pgRepository) ListPOs(ctx context.Context, filter POListFilter, page shared.Pagination) ([]POWithItems, int, error) {
	where := "WHERE TRUE"
	args := []any{}
	argPos := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND po.status = $%d", argPos)
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.SupplierID != 0 {
		where += fmt.Sprintf(" AND po.supplier_id = $%d", argPos)
		args = append(args, filter.SupplierID)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM purchase_orders po %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s, s.name FROM purchase_orders po
		JOIN suppliers s ON s.id = po.supplier_id
		%s ORDER BY po.created_at DESC LIMIT $%d OFFSET $%d`, poColumns, where, argPos, argPos+1)
	args = append(args, page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []POWithItems
	for rows.Next() {
		var po POWithItems
		if err := scanPO(rows, &po.PurchaseOrder, &po.SupplierName); err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		items, err := r.poItemDetails(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Items = items
	}
	return out, total, nil
}

func (r *pgRepository) poItemDetails(ctx context.Context, poID int64) ([]POItemDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.purchase_order_id, i.product_id, i.quantity_ordered, i.quantity_received,
		       i.unit_cost_cents, i.line_total_cents, p.name, p.sku
		FROM purchase_order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.purchase_order_id = $1
		ORDER BY i.id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []POItemDetail
	for rows.Next() {
		var d POItemDetail
		if err := rows.Scan(&d.ID, &d.PurchaseOrderID, &d.ProductID, &d.QuantityOrdered, &d.QuantityReceived,
			&d.UnitCostCents, &d.LineTotalCents, &d.ProductName, &d.ProductSKU); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const shipmentColumns = `id, shipment_number, order_id, carrier, tracking_number, status,
	estimated_delivery, notes, shipped_at, delivered_at, created_by, created_at, updated_at`

func (r *pgRepository) GetShipment(ctx context.Context, id int64) (*Shipment, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM shipments WHERE id = $1`, shipmentColumns), id)
	s, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("shipment %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

func (r *pgRepository) ListShipments(ctx context.Context, orderID int64, page shared.Pagination) ([]Shipment, int, error) {
	where := "WHERE TRUE"
	args := []any{}
	if orderID != 0 {
		where += " AND order_id = $1"
		args = append(args, orderID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM shipments %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM shipments %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, shipmentColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
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

func (r *txRepository) SupplierExists(ctx context.Context, supplierID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1 AND deleted_at IS NULL)`, supplierID).Scan(&exists)
	return exists, err
}

func (r *txRepository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND deleted_at IS NULL)`, productID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetPOForUpdate(ctx context.Context, id int64) (*PurchaseOrder, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, po_number, supplier_id, status, expected_date, notes,
		       total_cents, received_at, created_by, created_at, updated_at
		FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.PONumber, &po.SupplierID, &po.Status, &po.ExpectedDate, &po.Notes,
		&po.TotalCents, &po.ReceivedAt, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &po, nil
}

func (r *txRepository) GetPOItems(ctx context.Context, poID int64) ([]POItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, purchase_order_id, product_id, quantity_ordered, quantity_received,
		       unit_cost_cents, line_total_cents
		FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []POItem
	for rows.Next() {
		var it POItem
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.ProductID, &it.QuantityOrdered, &it.QuantityReceived,
			&it.UnitCostCents, &it.LineTotalCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepository) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO purchase_orders (po_number, supplier_id, status, expected_date, notes, total_cents, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		po.PONumber, po.SupplierID, po.Status, po.ExpectedDate, po.Notes, po.TotalCents, po.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPOItems(ctx context.Context, poID int64, items []POItem) error {
	for _, it := range items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity_ordered, unit_cost_cents, line_total_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			poID, it.ProductID, it.QuantityOrdered, it.UnitCostCents, it.LineTotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	_, err := r.db.Exec(ctx, `
		UPDATE purchase_orders SET status = $1, received_at = $2, updated_at = NOW()
		WHERE id = $3`, po.Status, po.ReceivedAt, po.ID)
	return err
}

func (r *txRepository) AddReceivedQuantity(ctx context.Context, itemID, delta int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE purchase_order_items SET quantity_received = quantity_received + $1
		WHERE id = $2`, delta, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("purchase order item %d: %w", itemID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) OrderStatus(ctx context.Context, orderID int64) (string, error) {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("order %d: %w", orderID, shared.ErrNotFound)
		}
		return "", err
	}
	return status, nil
}

func (r *txRepository) InsertShipment(ctx context.Context, s Shipment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO shipments (shipment_number, order_id, carrier, tracking_number, status,
			estimated_delivery, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		s.ShipmentNumber, s.OrderID, s.Carrier, s.TrackingNumber, s.Status,
		s.EstimatedDelivery, s.Notes, s.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) GetShipmentForUpdate(ctx context.Context, id int64) (*Shipment, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM shipments WHERE id = $1 FOR UPDATE`, shipmentColumns), id)
	s, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("shipment %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

func (r *txRepository) UpdateShipment(ctx context.Context, s Shipment) error {
	_, err := r.db.Exec(ctx, `
		UPDATE shipments SET carrier = $1, tracking_number = $2, status = $3,
			shipped_at = $4, delivered_at = $5, updated_at = NOW()
		WHERE id = $6`,
		s.Carrier, s.TrackingNumber, s.Status, s.ShippedAt, s.DeliveredAt, s.ID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSupplier(row rowScanner) (*Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.ContactName, &s.Email, &s.Phone,
		&s.Address, &s.PaymentTerms, &s.Notes, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanPO(row rowScanner, po *PurchaseOrder, supplierName *string) error {
	return row.Scan(&po.ID, &po.PONumber, &po.SupplierID, &po.Status, &po.ExpectedDate, &po.Notes,
		&po.TotalCents, &po.ReceivedAt, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt, supplierName)
}

func scanShipment(row rowScanner) (*Shipment, error) {
	var s Shipment
	err := row.Scan(&s.ID, &s.ShipmentNumber, &s.OrderID, &s.Carrier, &s.TrackingNumber,
		&s.Status, &s.EstimatedDelivery, &s.Notes, &s.ShippedAt, &s.DeliveredAt,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var _ TxRepository = (*txRepository)(nil)
