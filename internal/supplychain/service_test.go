package supplychain

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/orders"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memRepo struct {
	suppliers map[int64]*Supplier
	products  map[int64]bool
	pos       map[int64]*PurchaseOrder
	poItems   map[int64][]POItem
	shipments map[int64]*Shipment
	catalog   map[[2]int64]SupplierProduct
	orders    map[int64]string
	stock     map[int64]inventory.Record
	ledger    []inventory.LedgerEntry
	nextID    int64
	seq       int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		suppliers: make(map[int64]*Supplier),
		products:  make(map[int64]bool),
		pos:       make(map[int64]*PurchaseOrder),
		poItems:   make(map[int64][]POItem),
		shipments: make(map[int64]*Shipment),
		catalog:   make(map[[2]int64]SupplierProduct),
		orders:    make(map[int64]string),
		stock:     make(map[int64]inventory.Record),
	}
}

func (r *memRepo) snapshot() *memRepo {
	cp := newMemRepo()
	for id, s := range r.suppliers {
		c := *s
		cp.suppliers[id] = &c
	}
	for id, ok := range r.products {
		cp.products[id] = ok
	}
	for id, po := range r.pos {
		c := *po
		cp.pos[id] = &c
	}
	for id, items := range r.poItems {
		cp.poItems[id] = append([]POItem(nil), items...)
	}
	for id, s := range r.shipments {
		c := *s
		cp.shipments[id] = &c
	}
	for key, sp := range r.catalog {
		cp.catalog[key] = sp
	}
	for id, st := range r.orders {
		cp.orders[id] = st
	}
	for id, rec := range r.stock {
		cp.stock[id] = rec
	}
	cp.ledger = append([]inventory.LedgerEntry(nil), r.ledger...)
	cp.nextID = r.nextID
	cp.seq = r.seq
	return cp
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memTx{repo: r}); err != nil {
		*r = *snap
		return err
	}
	return nil
}

func (r *memRepo) CreateSupplier(_ context.Context, input SupplierInput) (*Supplier, error) {
	r.nextID++
	s := &Supplier{ID: r.nextID, Name: input.Name, Email: input.Email, PaymentTerms: input.PaymentTerms}
	r.suppliers[s.ID] = s
	return s, nil
}

func (r *memRepo) GetSupplier(_ context.Context, id int64) (*Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
	}
	return s, nil
}

func (r *memRepo) ListSuppliers(_ context.Context, _ string, _ shared.Pagination) ([]Supplier, int, error) {
	var out []Supplier
	for _, s := range r.suppliers {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (r *memRepo) UpdateSupplier(_ context.Context, id int64, input SupplierInput) (*Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
	}
	s.Name = input.Name
	s.PaymentTerms = input.PaymentTerms
	return s, nil
}

func (r *memRepo) SoftDeleteSupplier(_ context.Context, id int64) error {
	if _, ok := r.suppliers[id]; !ok {
		return fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
	}
	delete(r.suppliers, id)
	return nil
}

func (r *memRepo) ListSupplierProducts(_ context.Context, supplierID int64) ([]SupplierProductDetail, error) {
	var out []SupplierProductDetail
	for key, sp := range r.catalog {
		if key[0] == supplierID {
			out = append(out, SupplierProductDetail{SupplierProduct: sp, ProductName: "Widget", ProductSKU: "W-1"})
		}
	}
	return out, nil
}

func (r *memRepo) UpsertSupplierProduct(_ context.Context, sp SupplierProduct) error {
	if !r.products[sp.ProductID] {
		return fmt.Errorf("product %d: %w", sp.ProductID, shared.ErrNotFound)
	}
	r.catalog[[2]int64{sp.SupplierID, sp.ProductID}] = sp
	return nil
}

func (r *memRepo) RemoveSupplierProduct(_ context.Context, supplierID, productID int64) error {
	key := [2]int64{supplierID, productID}
	if _, ok := r.catalog[key]; !ok {
		return fmt.Errorf("supplier %d product %d: %w", supplierID, productID, shared.ErrNotFound)
	}
	delete(r.catalog, key)
	return nil
}

func (r *memRepo) GetPO(_ context.Context, id int64) (*POWithItems, error) {
	po, ok := r.pos[id]
	if !ok {
		return nil, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	out := POWithItems{PurchaseOrder: *po, SupplierName: "Vendor"}
	for _, it := range r.poItems[id] {
		out.Items = append(out.Items, POItemDetail{POItem: it})
	}
	return &out, nil
}

func (r *memRepo) ListPOs(_ context.Context, _ POListFilter, _ shared.Pagination) ([]POWithItems, int, error) {
	var out []POWithItems
	for id := range r.pos {
		po, _ := r.GetPO(context.Background(), id)
		out = append(out, *po)
	}
	return out, len(out), nil
}

func (r *memRepo) GetShipment(_ context.Context, id int64) (*Shipment, error) {
	s, ok := r.shipments[id]
	if !ok {
		return nil, fmt.Errorf("shipment %d: %w", id, shared.ErrNotFound)
	}
	c := *s
	return &c, nil
}

func (r *memRepo) ListShipments(_ context.Context, _ int64, _ shared.Pagination) ([]Shipment, int, error) {
	var out []Shipment
	for _, s := range r.shipments {
		out = append(out, *s)
	}
	return out, len(out), nil
}

type memTx struct {
	repo *memRepo
}

func (t *memTx) SupplierExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.repo.suppliers[id]
	return ok, nil
}

func (t *memTx) ProductExists(_ context.Context, id int64) (bool, error) {
	return t.repo.products[id], nil
}

func (t *memTx) GetPOForUpdate(_ context.Context, id int64) (*PurchaseOrder, error) {
	po, ok := t.repo.pos[id]
	if !ok {
		return nil, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	c := *po
	return &c, nil
}

func (t *memTx) GetPOItems(_ context.Context, poID int64) ([]POItem, error) {
	return append([]POItem(nil), t.repo.poItems[poID]...), nil
}

func (t *memTx) InsertPO(_ context.Context, po PurchaseOrder) (int64, error) {
	t.repo.nextID++
	po.ID = t.repo.nextID
	po.CreatedAt = time.Now()
	t.repo.pos[po.ID] = &po
	return po.ID, nil
}

func (t *memTx) InsertPOItems(_ context.Context, poID int64, items []POItem) error {
	for i := range items {
		items[i].PurchaseOrderID = poID
		items[i].ID = int64(len(t.repo.poItems[poID]) + i + 1)
	}
	t.repo.poItems[poID] = append(t.repo.poItems[poID], items...)
	return nil
}

func (t *memTx) UpdatePO(_ context.Context, po PurchaseOrder) error {
	cur := t.repo.pos[po.ID]
	cur.Status = po.Status
	cur.ReceivedAt = po.ReceivedAt
	return nil
}

func (t *memTx) AddReceivedQuantity(_ context.Context, itemID, delta int64) error {
	for poID, items := range t.repo.poItems {
		for i := range items {
			if items[i].ID == itemID {
				t.repo.poItems[poID][i].QuantityReceived += delta
				return nil
			}
		}
	}
	return fmt.Errorf("purchase order item %d: %w", itemID, shared.ErrNotFound)
}

func (t *memTx) OrderStatus(_ context.Context, orderID int64) (string, error) {
	st, ok := t.repo.orders[orderID]
	if !ok {
		return "", fmt.Errorf("order %d: %w", orderID, shared.ErrNotFound)
	}
	return st, nil
}

func (t *memTx) InsertShipment(_ context.Context, s Shipment) (int64, error) {
	t.repo.nextID++
	s.ID = t.repo.nextID
	t.repo.shipments[s.ID] = &s
	return s.ID, nil
}

func (t *memTx) GetShipmentForUpdate(_ context.Context, id int64) (*Shipment, error) {
	s, ok := t.repo.shipments[id]
	if !ok {
		return nil, fmt.Errorf("shipment %d: %w", id, shared.ErrNotFound)
	}
	c := *s
	return &c, nil
}

func (t *memTx) UpdateShipment(_ context.Context, s Shipment) error {
	cur := t.repo.shipments[s.ID]
	cur.Status = s.Status
	cur.ShippedAt = s.ShippedAt
	cur.DeliveredAt = s.DeliveredAt
	cur.Carrier = s.Carrier
	cur.TrackingNumber = s.TrackingNumber
	cur.EstimatedDelivery = s.EstimatedDelivery
	cur.Notes = s.Notes
	return nil
}

func (t *memTx) Inventory() inventory.Store {
	return &memInvStore{repo: t.repo}
}

func (t *memTx) Sequences() sequence.Store {
	return seqStore{repo: t.repo}
}

type memInvStore struct {
	repo *memRepo
}

func (s *memInvStore) GetRecordForUpdate(_ context.Context, productID int64) (inventory.Record, error) {
	rec, ok := s.repo.stock[productID]
	if !ok {
		return inventory.Record{}, fmt.Errorf("inventory record for product %d: %w", productID, shared.ErrNotFound)
	}
	return rec, nil
}

func (s *memInvStore) UpdateQuantities(_ context.Context, productID, onHand, reserved int64) error {
	rec := s.repo.stock[productID]
	rec.OnHand = onHand
	rec.Reserved = reserved
	s.repo.stock[productID] = rec
	return nil
}

func (s *memInvStore) InsertLedgerEntry(_ context.Context, entry inventory.LedgerEntry) error {
	s.repo.ledger = append(s.repo.ledger, entry)
	return nil
}

type seqStore struct {
	repo *memRepo
}

func (s seqStore) NextValue(_ context.Context, _ string, _ int) (int64, error) {
	s.repo.seq++
	return s.repo.seq, nil
}

type fakeOrderTransitions struct {
	calls []orders.Status
	err   error
}

func (f *fakeOrderTransitions) UpdateStatus(_ context.Context, _ int64, target orders.Status, _ int64) (*orders.OrderWithItems, error) {
	f.calls = append(f.calls, target)
	return nil, f.err
}

func newTestService(repo *memRepo) (*Service, *fakeOrderTransitions) {
	fake := &fakeOrderTransitions{}
	return NewService(repo, inventory.NewEngine(), fake, nil, slog.Default()), fake
}

func seedRepo() *memRepo {
	r := newMemRepo()
	r.suppliers[1] = &Supplier{ID: 1, Name: "Vendor"}
	r.products[10] = true
	r.products[11] = true
	r.stock[10] = inventory.Record{ProductID: 10, OnHand: 3}
	r.stock[11] = inventory.Record{ProductID: 11}
	return r
}

func confirmedPO(t *testing.T, svc *Service, items []POItemInput) *POWithItems {
	t.Helper()
	ctx := context.Background()
	po, err := svc.CreatePO(ctx, POCreateInput{SupplierID: 1, Items: items}, 7)
	require.NoError(t, err)
	_, err = svc.SetPOStatus(ctx, po.ID, POStatusSent, 7)
	require.NoError(t, err)
	got, err := svc.SetPOStatus(ctx, po.ID, POStatusConfirmed, 7)
	require.NoError(t, err)
	return got
}

func TestSupplierPaymentTerms(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(seedRepo())

	terms := "net 30"
	sup, err := svc.CreateSupplier(ctx, SupplierInput{Name: "Acme Parts", PaymentTerms: &terms}, 7)
	require.NoError(t, err)
	require.NotNil(t, sup.PaymentTerms)
	require.Equal(t, "net 30", *sup.PaymentTerms)

	revised := "net 60"
	got, err := svc.UpdateSupplier(ctx, sup.ID, SupplierInput{Name: "Acme Parts", PaymentTerms: &revised}, 7)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentTerms)
	require.Equal(t, "net 60", *got.PaymentTerms)
}

func TestCreatePOTotals(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(seedRepo())

	po, err := svc.CreatePO(ctx, POCreateInput{
		SupplierID: 1,
		Items: []POItemInput{
			{ProductID: 10, QuantityOrdered: 10, UnitCostCents: 250},
			{ProductID: 11, QuantityOrdered: 4, UnitCostCents: 100},
		},
	}, 7)
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, po.Status)
	require.EqualValues(t, 2900, po.TotalCents)
	require.Len(t, po.Items, 2)
	require.EqualValues(t, 2500, po.Items[0].LineTotalCents)
	require.Contains(t, po.PONumber, "PO-")
}

func TestCreatePOValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(seedRepo())

	_, err := svc.CreatePO(ctx, POCreateInput{SupplierID: 1}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePO(ctx, POCreateInput{
		SupplierID: 99,
		Items:      []POItemInput{{ProductID: 10, QuantityOrdered: 1}},
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreatePO(ctx, POCreateInput{
		SupplierID: 1,
		Items:      []POItemInput{{ProductID: 404, QuantityOrdered: 1}},
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetPOStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(seedRepo())

	po, err := svc.CreatePO(ctx, POCreateInput{
		SupplierID: 1,
		Items:      []POItemInput{{ProductID: 10, QuantityOrdered: 1, UnitCostCents: 100}},
	}, 7)
	require.NoError(t, err)

	// draft cannot jump straight to confirmed
	_, err = svc.SetPOStatus(ctx, po.ID, POStatusConfirmed, 7)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	// derived states cannot be set by hand
	_, err = svc.SetPOStatus(ctx, po.ID, POStatusReceived, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.SetPOStatus(ctx, po.ID, POStatusPartial, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.SetPOStatus(ctx, po.ID, POStatusSent, 7)
	require.NoError(t, err)
	require.Equal(t, POStatusSent, got.Status)
}

func TestReceivePartialThenComplete(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc, _ := newTestService(repo)
	po := confirmedPO(t, svc, []POItemInput{{ProductID: 10, QuantityOrdered: 10, UnitCostCents: 250}})
	itemID := po.Items[0].ID

	got, err := svc.Receive(ctx, po.ID, []ReceiptLine{{ItemID: itemID, QuantityReceived: 4}}, 7)
	require.NoError(t, err)
	require.Equal(t, POStatusPartial, got.Status)
	require.Nil(t, got.ReceivedAt)
	require.EqualValues(t, 4, got.Items[0].QuantityReceived)
	require.EqualValues(t, 7, repo.stock[10].OnHand)

	got, err = svc.Receive(ctx, po.ID, []ReceiptLine{{ItemID: itemID, QuantityReceived: 6}}, 7)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, got.Status)
	require.NotNil(t, got.ReceivedAt)
	require.EqualValues(t, 10, got.Items[0].QuantityReceived)
	require.EqualValues(t, 13, repo.stock[10].OnHand)

	require.Len(t, repo.ledger, 2)
	for _, e := range repo.ledger {
		require.Equal(t, inventory.TransactionTypePurchaseReceipt, e.Type)
	}
}

func TestReceiveMultiLineDerivation(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc, _ := newTestService(repo)
	po := confirmedPO(t, svc, []POItemInput{
		{ProductID: 10, QuantityOrdered: 5, UnitCostCents: 100},
		{ProductID: 11, QuantityOrdered: 5, UnitCostCents: 100},
	})

	// fully receive one line, leave the other untouched
	got, err := svc.Receive(ctx, po.ID, []ReceiptLine{{ItemID: po.Items[0].ID, QuantityReceived: 5}}, 7)
	require.NoError(t, err)
	require.Equal(t, POStatusPartial, got.Status)

	got, err = svc.Receive(ctx, po.ID, []ReceiptLine{{ItemID: po.Items[1].ID, QuantityReceived: 5}}, 7)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, got.Status)
}

func TestReceiveGuards(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc, _ := newTestService(repo)
	po := confirmedPO(t, svc, []POItemInput{{ProductID: 10, QuantityOrdered: 2, UnitCostCents: 100}})

	_, err := svc.Receive(ctx, po.ID, nil, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Receive(ctx, po.ID, []ReceiptLine{{ItemID: 999, QuantityReceived: 1}}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
	// failed receipt left no stock behind
	require.EqualValues(t, 3, repo.stock[10].OnHand)

	_, err = svc.Receive(ctx, po.ID, []ReceiptLine{{ItemID: po.Items[0].ID, QuantityReceived: 2}}, 7)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, po.ID, []ReceiptLine{{ItemID: po.Items[0].ID, QuantityReceived: 1}}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestShipmentDeliveredMovesOrder(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	repo.orders[100] = string(orders.StatusShipped)
	svc, fake := newTestService(repo)

	sh, err := svc.CreateShipment(ctx, ShipmentInput{OrderID: 100}, 7)
	require.NoError(t, err)
	require.Equal(t, ShipmentPending, sh.Status)
	require.Contains(t, sh.ShipmentNumber, "SHP-")

	got, err := svc.SetShipmentStatus(ctx, sh.ID, ShipmentDelivered, 7)
	require.NoError(t, err)
	require.Equal(t, ShipmentDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.Equal(t, []orders.Status{orders.StatusDelivered}, fake.calls)
}

func TestShipmentRequiresShippedOrder(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	repo.orders[100] = string(orders.StatusDraft)
	svc, _ := newTestService(repo)

	_, err := svc.CreateShipment(ctx, ShipmentInput{OrderID: 100}, 7)
	require.ErrorIs(t, err, shared.ErrOrderNotReady)
}

func TestShipmentDispatchStampsShippedAt(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	repo.orders[100] = string(orders.StatusShipped)
	svc, fake := newTestService(repo)

	sh, err := svc.CreateShipment(ctx, ShipmentInput{OrderID: 100}, 7)
	require.NoError(t, err)
	require.Nil(t, sh.ShippedAt)

	got, err := svc.SetShipmentStatus(ctx, sh.ID, ShipmentDispatched, 7)
	require.NoError(t, err)
	require.NotNil(t, got.ShippedAt)
	require.Nil(t, got.DeliveredAt)
	require.Empty(t, fake.calls)

	first := *got.ShippedAt
	got, err = svc.SetShipmentStatus(ctx, got.ID, ShipmentInTransit, 7)
	require.NoError(t, err)
	require.Equal(t, first, *got.ShippedAt)

	_, err = svc.SetShipmentStatus(ctx, got.ID, "teleported", 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSupplierProductCatalog(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc, _ := newTestService(repo)

	out, err := svc.LinkSupplierProduct(ctx, SupplierProduct{
		SupplierID:     1,
		ProductID:      10,
		CostPriceCents: 450,
		LeadTimeDays:   14,
		IsPreferred:    true,
	}, 7)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].MinOrderQuantity)

	// relinking the same product replaces the entry
	out, err = svc.LinkSupplierProduct(ctx, SupplierProduct{
		SupplierID:       1,
		ProductID:        10,
		CostPriceCents:   500,
		MinOrderQuantity: 25,
	}, 7)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(500), out[0].CostPriceCents)
	require.Equal(t, int64(25), out[0].MinOrderQuantity)

	_, err = svc.LinkSupplierProduct(ctx, SupplierProduct{SupplierID: 1, ProductID: 999}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.LinkSupplierProduct(ctx, SupplierProduct{SupplierID: 42, ProductID: 10}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.UnlinkSupplierProduct(ctx, 1, 10, 7))
	err = svc.UnlinkSupplierProduct(ctx, 1, 10, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
