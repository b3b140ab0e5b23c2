package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memRepo struct {
	orders   map[int64]*OrderSnapshot
	invoices map[int64]*Invoice
	byOrder  map[int64]int64
	nextID   int64
	seq      int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		orders:   make(map[int64]*OrderSnapshot),
		invoices: make(map[int64]*Invoice),
		byOrder:  make(map[int64]int64),
	}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memTx{repo: r})
}

func (r *memRepo) Get(_ context.Context, id int64) (*InvoiceWithOrder, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return &InvoiceWithOrder{Invoice: *inv, OrderNumber: "ORD-2026-00001", CustomerName: "Acme"}, nil
}

func (r *memRepo) List(_ context.Context, _ shared.Pagination) ([]InvoiceWithOrder, int, error) {
	var out []InvoiceWithOrder
	for id := range r.invoices {
		inv, _ := r.Get(context.Background(), id)
		out = append(out, *inv)
	}
	return out, len(out), nil
}

type memTx struct {
	repo *memRepo
}

func (t *memTx) OrderSnapshotForUpdate(_ context.Context, orderID int64) (*OrderSnapshot, error) {
	o, ok := t.repo.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, shared.ErrNotFound)
	}
	return o, nil
}

func (t *memTx) ExistsForOrder(_ context.Context, orderID int64) (bool, error) {
	_, ok := t.repo.byOrder[orderID]
	return ok, nil
}

func (t *memTx) Insert(_ context.Context, inv Invoice) (int64, error) {
	if _, ok := t.repo.byOrder[inv.OrderID]; ok {
		return 0, fmt.Errorf("invoice for order %d: %w", inv.OrderID, shared.ErrAlreadyExists)
	}
	t.repo.nextID++
	inv.ID = t.repo.nextID
	inv.CreatedAt = time.Now()
	t.repo.invoices[inv.ID] = &inv
	t.repo.byOrder[inv.OrderID] = inv.ID
	return inv.ID, nil
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	c := *inv
	return &c, nil
}

func (t *memTx) Update(_ context.Context, inv Invoice) error {
	cur := t.repo.invoices[inv.ID]
	cur.Status = inv.Status
	cur.AmountPaidCents = inv.AmountPaidCents
	cur.SentAt = inv.SentAt
	cur.PaidAt = inv.PaidAt
	return nil
}

func (t *memTx) Sequences() sequence.Store {
	return seqStore{repo: t.repo}
}

type seqStore struct {
	repo *memRepo
}

func (s seqStore) NextValue(_ context.Context, _ string, _ int) (int64, error) {
	s.repo.seq++
	return s.repo.seq, nil
}

func seedRepo() *memRepo {
	r := newMemRepo()
	r.orders[100] = &OrderSnapshot{
		ID: 100, OrderNumber: "ORD-2026-00001", Status: "confirmed",
		SubtotalCents: 2700, DiscountCents: 200, TaxCents: 50, TotalCents: 2550,
	}
	r.orders[101] = &OrderSnapshot{ID: 101, OrderNumber: "ORD-2026-00002", Status: "draft", TotalCents: 100}
	return r
}

func newTestService(repo *memRepo) *Service {
	svc := NewService(repo, nil, slog.Default())
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestGenerateFromOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(seedRepo())

	inv, err := svc.GenerateFromOrder(ctx, 100, 7)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, inv.Status)
	require.EqualValues(t, 2700, inv.SubtotalCents)
	require.EqualValues(t, 2550, inv.TotalCents)
	require.Zero(t, inv.AmountPaidCents)
	require.Contains(t, inv.InvoiceNumber, "INV-")
	// net-30
	require.Equal(t, time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), inv.DueDate)
}

func TestGenerateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(seedRepo())

	_, err := svc.GenerateFromOrder(ctx, 100, 7)
	require.NoError(t, err)
	_, err = svc.GenerateFromOrder(ctx, 100, 7)
	require.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestGenerateRequiresReadyOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(seedRepo())

	_, err := svc.GenerateFromOrder(ctx, 101, 7)
	require.ErrorIs(t, err, shared.ErrOrderNotReady)

	_, err = svc.GenerateFromOrder(ctx, 404, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateStatusStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(seedRepo())
	inv, err := svc.GenerateFromOrder(ctx, 100, 7)
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, inv.ID, StatusInput{Status: StatusSent}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	firstSent := *got.SentAt

	// paid without an explicit amount defaults to the full total
	got, err = svc.UpdateStatus(ctx, inv.ID, StatusInput{Status: StatusPaid}, 7)
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	require.EqualValues(t, 2550, got.AmountPaidCents)

	// re-sending keeps the original timestamp
	got, err = svc.UpdateStatus(ctx, inv.ID, StatusInput{Status: StatusSent}, 7)
	require.NoError(t, err)
	require.Equal(t, firstSent, *got.SentAt)
}

func TestUpdateStatusPartialPayment(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(seedRepo())
	inv, err := svc.GenerateFromOrder(ctx, 100, 7)
	require.NoError(t, err)

	paid := int64(1000)
	got, err := svc.UpdateStatus(ctx, inv.ID, StatusInput{Status: StatusSent, AmountPaidCents: &paid}, 7)
	require.NoError(t, err)
	require.EqualValues(t, 1000, got.AmountPaidCents)

	_, err = svc.UpdateStatus(ctx, inv.ID, StatusInput{Status: Status("bogus")}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDisplayAmount(t *testing.T) {
	require.Equal(t, "$1,234,567.89", DisplayAmount(123456789))
	require.Equal(t, "$25.50", DisplayAmount(2550))
	require.Equal(t, "$0.00", DisplayAmount(0))
}
