package orders

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// memRepo keeps whole-state snapshots per transaction so a failed unit
// of work observably rolls everything back, counters included.
type memRepo struct {
	orders    map[int64]*Order
	items     map[int64][]Item
	prices    map[int64]int64
	customers map[int64]bool
	stock     map[int64]inventory.Record
	ledger    []inventory.LedgerEntry
	nextID    int64
	seq       int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		orders:    make(map[int64]*Order),
		items:     make(map[int64][]Item),
		prices:    make(map[int64]int64),
		customers: make(map[int64]bool),
		stock:     make(map[int64]inventory.Record),
	}
}

func (r *memRepo) snapshot() *memRepo {
	cp := newMemRepo()
	for id, o := range r.orders {
		c := *o
		cp.orders[id] = &c
	}
	for id, items := range r.items {
		cp.items[id] = append([]Item(nil), items...)
	}
	for id, p := range r.prices {
		cp.prices[id] = p
	}
	for id, ok := range r.customers {
		cp.customers[id] = ok
	}
	for id, rec := range r.stock {
		cp.stock[id] = rec
	}
	cp.ledger = append([]inventory.LedgerEntry(nil), r.ledger...)
	cp.nextID = r.nextID
	cp.seq = r.seq
	return cp
}

func (r *memRepo) restore(snap *memRepo) {
	r.orders = snap.orders
	r.items = snap.items
	r.prices = snap.prices
	r.customers = snap.customers
	r.stock = snap.stock
	r.ledger = snap.ledger
	r.nextID = snap.nextID
	r.seq = snap.seq
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memRepo) Get(_ context.Context, id int64) (*OrderWithItems, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	out := OrderWithItems{Order: *o, CustomerName: "Acme"}
	for _, it := range r.items[id] {
		out.Items = append(out.Items, ItemDetail{Item: it})
	}
	return &out, nil
}

func (r *memRepo) List(_ context.Context, _ ListFilter, _ shared.Pagination) ([]OrderWithItems, int, error) {
	var out []OrderWithItems
	for id := range r.orders {
		o, _ := r.Get(context.Background(), id)
		out = append(out, *o)
	}
	return out, len(out), nil
}

type memTx struct {
	repo *memRepo
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*Order, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	c := *o
	return &c, nil
}

func (t *memTx) GetItems(_ context.Context, orderID int64) ([]Item, error) {
	return append([]Item(nil), t.repo.items[orderID]...), nil
}

func (t *memTx) ProductPrice(_ context.Context, productID int64) (int64, error) {
	price, ok := t.repo.prices[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
	}
	return price, nil
}

func (t *memTx) CustomerExists(_ context.Context, customerID int64) (bool, error) {
	return t.repo.customers[customerID], nil
}

func (t *memTx) Insert(_ context.Context, o Order) (int64, error) {
	t.repo.nextID++
	o.ID = t.repo.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.repo.orders[o.ID] = &o
	return o.ID, nil
}

func (t *memTx) InsertItems(_ context.Context, orderID int64, items []Item) error {
	for i := range items {
		items[i].OrderID = orderID
		items[i].ID = int64(i + 1)
	}
	t.repo.items[orderID] = append(t.repo.items[orderID], items...)
	return nil
}

func (t *memTx) UpdateHeader(_ context.Context, o Order) error {
	cur := t.repo.orders[o.ID]
	cur.ShippingAddress = o.ShippingAddress
	cur.Notes = o.Notes
	cur.SubtotalCents = o.SubtotalCents
	cur.DiscountCents = o.DiscountCents
	cur.TaxCents = o.TaxCents
	cur.TotalCents = o.TotalCents
	return nil
}

func (t *memTx) UpdateStatus(_ context.Context, o Order) error {
	cur := t.repo.orders[o.ID]
	cur.Status = o.Status
	cur.OrderedAt = o.OrderedAt
	cur.ShippedAt = o.ShippedAt
	cur.DeliveredAt = o.DeliveredAt
	cur.CancelledAt = o.CancelledAt
	return nil
}

func (t *memTx) ReplaceItems(_ context.Context, orderID int64, items []Item) error {
	t.repo.items[orderID] = nil
	return t.InsertItems(context.Background(), orderID, items)
}

func (t *memTx) Delete(_ context.Context, id int64) error {
	if _, ok := t.repo.orders[id]; !ok {
		return fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	delete(t.repo.orders, id)
	delete(t.repo.items, id)
	return nil
}

func (t *memTx) Inventory() inventory.Store {
	return &memInvStore{repo: t.repo}
}

func (t *memTx) Sequences() sequence.Store {
	return sequenceStore{repo: t.repo}
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

func newService(repo *memRepo) *Service {
	return NewService(repo, inventory.NewEngine(), nil, slog.Default())
}

type sequenceStore struct {
	repo *memRepo
}

func (s sequenceStore) NextValue(_ context.Context, _ string, _ int) (int64, error) {
	s.repo.seq++
	return s.repo.seq, nil
}

func seedRepo() *memRepo {
	r := newMemRepo()
	r.customers[1] = true
	r.prices[10] = 1000
	r.prices[11] = 500
	r.stock[10] = inventory.Record{ProductID: 10, OnHand: 50}
	r.stock[11] = inventory.Record{ProductID: 11, OnHand: 5}
	return r
}

func TestLineTotalRounding(t *testing.T) {
	// 1000 * 3 * 0.9 = 2700
	require.EqualValues(t, 2700, LineTotal(1000, 3, 10))
	// 999 * 1 * 0.5 = 499.5, rounds half-up to 500
	require.EqualValues(t, 500, LineTotal(999, 1, 50))
	// 333 * 1 * (1 - 1/3): 333 * 0.6667 = 221.9...
	require.EqualValues(t, 222, LineTotal(333, 1, 100.0/3))
	require.EqualValues(t, 0, LineTotal(1000, 2, 100))
}

func TestCreateOrderTotals(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)

	order, err := svc.Create(ctx, CreateInput{
		CustomerID:    1,
		DiscountCents: 200,
		TaxCents:      50,
		Items:         []ItemInput{{ProductID: 10, Quantity: 3, DiscountPct: 10}},
	}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.EqualValues(t, 2700, order.SubtotalCents)
	require.EqualValues(t, 2550, order.TotalCents)
	require.Len(t, order.Items, 1)
	require.EqualValues(t, 1000, order.Items[0].UnitPriceCents)

	// draft touches no inventory
	require.EqualValues(t, 50, repo.stock[10].OnHand)
	require.Zero(t, repo.stock[10].Reserved)
	require.Empty(t, repo.ledger)
	require.Contains(t, order.OrderNumber, "ORD-")
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(seedRepo())

	_, err := svc.Create(ctx, CreateInput{CustomerID: 1}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{
		CustomerID: 99,
		Items:      []ItemInput{{ProductID: 10, Quantity: 1}},
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Create(ctx, CreateInput{
		CustomerID: 1,
		Items:      []ItemInput{{ProductID: 404, Quantity: 1}},
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Create(ctx, CreateInput{
		CustomerID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 0}},
	}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func createDraft(t *testing.T, svc *Service, qty int64) *OrderWithItems {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateInput{
		CustomerID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: qty}},
	}, 7)
	require.NoError(t, err)
	return order
}

func TestConfirmReservesStock(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)
	order := createDraft(t, svc, 10)

	got, err := svc.UpdateStatus(ctx, order.ID, StatusConfirmed, 7)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.OrderedAt)

	require.EqualValues(t, 50, repo.stock[10].OnHand)
	require.EqualValues(t, 10, repo.stock[10].Reserved)
	require.Len(t, repo.ledger, 1)
	require.EqualValues(t, -10, repo.ledger[0].QuantityDelta)
}

func TestShipDeductsStock(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)
	order := createDraft(t, svc, 10)

	_, err := svc.UpdateStatus(ctx, order.ID, StatusConfirmed, 7)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, order.ID, StatusProcessing, 7)
	require.NoError(t, err)
	got, err := svc.UpdateStatus(ctx, order.ID, StatusShipped, 7)
	require.NoError(t, err)
	require.NotNil(t, got.ShippedAt)

	require.EqualValues(t, 40, repo.stock[10].OnHand)
	require.Zero(t, repo.stock[10].Reserved)

	var sales int
	for _, e := range repo.ledger {
		if e.Type == inventory.TransactionTypeSale {
			sales++
			require.EqualValues(t, -10, e.QuantityDelta)
		}
	}
	require.Equal(t, 1, sales)
}

func TestCancelReleasesReservation(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)
	order := createDraft(t, svc, 10)

	_, err := svc.UpdateStatus(ctx, order.ID, StatusConfirmed, 7)
	require.NoError(t, err)
	got, err := svc.UpdateStatus(ctx, order.ID, StatusCancelled, 7)
	require.NoError(t, err)
	require.NotNil(t, got.CancelledAt)

	require.EqualValues(t, 50, repo.stock[10].OnHand)
	require.Zero(t, repo.stock[10].Reserved)
	// reserve -10 then release +10
	require.Len(t, repo.ledger, 2)
	require.EqualValues(t, -10, repo.ledger[0].QuantityDelta)
	require.EqualValues(t, 10, repo.ledger[1].QuantityDelta)
}

func TestCancelFromDraftTouchesNoInventory(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)
	order := createDraft(t, svc, 10)

	_, err := svc.UpdateStatus(ctx, order.ID, StatusCancelled, 7)
	require.NoError(t, err)
	require.Empty(t, repo.ledger)
	require.Zero(t, repo.stock[10].Reserved)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	svc := newService(seedRepo())
	order := createDraft(t, svc, 1)

	cases := []Status{StatusShipped, StatusDelivered, StatusProcessing}
	for _, target := range cases {
		_, err := svc.UpdateStatus(ctx, order.ID, target, 7)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	}

	_, err := svc.UpdateStatus(ctx, order.ID, StatusCancelled, 7)
	require.NoError(t, err)
	// terminal: nothing leaves cancelled
	for _, target := range []Status{StatusConfirmed, StatusShipped, StatusCancelled} {
		_, err := svc.UpdateStatus(ctx, order.ID, target, 7)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	}

	_, err = svc.UpdateStatus(ctx, order.ID, Status("bogus"), 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestFailedTransitionRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)

	// two lines; the second has no inventory record, so the reserve
	// loop fails midway and the whole confirm must roll back
	order, err := svc.Create(ctx, CreateInput{
		CustomerID: 1,
		Items: []ItemInput{
			{ProductID: 10, Quantity: 5},
			{ProductID: 11, Quantity: 1},
		},
	}, 7)
	require.NoError(t, err)
	delete(repo.stock, 11)

	_, err = svc.UpdateStatus(ctx, order.ID, StatusConfirmed, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	got, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
	require.Nil(t, got.OrderedAt)
	require.Zero(t, repo.stock[10].Reserved)
	require.Empty(t, repo.ledger)
}

func TestUpdateDraftOnly(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)
	order := createDraft(t, svc, 2)

	got, err := svc.Update(ctx, order.ID, UpdateInput{
		DiscountCents: 100,
		TaxCents:      30,
		Items:         []ItemInput{{ProductID: 11, Quantity: 4}},
	}, 7)
	require.NoError(t, err)
	require.EqualValues(t, 2000, got.SubtotalCents)
	require.EqualValues(t, 1930, got.TotalCents)
	require.Len(t, got.Items, 1)
	require.EqualValues(t, 11, got.Items[0].ProductID)

	_, err = svc.UpdateStatus(ctx, order.ID, StatusConfirmed, 7)
	require.NoError(t, err)
	_, err = svc.Update(ctx, order.ID, UpdateInput{
		Items: []ItemInput{{ProductID: 10, Quantity: 1}},
	}, 7)
	require.ErrorIs(t, err, shared.ErrEditNotAllowed)
}

func TestUpdateHeaderOnlyKeepsLines(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)
	order := createDraft(t, svc, 2)

	got, err := svc.Update(ctx, order.ID, UpdateInput{
		DiscountCents: 150,
		TaxCents:      50,
	}, 7)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.EqualValues(t, 10, got.Items[0].ProductID)
	require.EqualValues(t, 2, got.Items[0].Quantity)
	require.EqualValues(t, 2000, got.SubtotalCents)
	require.EqualValues(t, 1900, got.TotalCents)
}

func TestDeleteDraftOnly(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	svc := newService(repo)

	order := createDraft(t, svc, 2)
	require.NoError(t, svc.Delete(ctx, order.ID, 7))
	_, err := svc.Get(ctx, order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	order = createDraft(t, svc, 2)
	_, err = svc.UpdateStatus(ctx, order.ID, StatusConfirmed, 7)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, order.ID, 7), shared.ErrDeleteNotAllowed)
}

func TestOrderNumbersIncrease(t *testing.T) {
	svc := newService(seedRepo())
	first := createDraft(t, svc, 1)
	second := createDraft(t, svc, 1)
	require.NotEqual(t, first.OrderNumber, second.OrderNumber)
	require.Less(t, first.OrderNumber, second.OrderNumber)
}
