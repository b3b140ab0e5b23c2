package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	counters map[string]int64
	err      error
}

func (s *memStore) NextValue(_ context.Context, name string, year int) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.counters == nil {
		s.counters = map[string]int64{}
	}
	key := name + "/" + time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
	s.counters[key]++
	return s.counters[key], nil
}

func TestGeneratorFormatsNumbers(t *testing.T) {
	g := NewGenerator(&memStore{})
	g.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }

	first, err := g.Next(context.Background(), NameOrder)
	require.NoError(t, err)
	require.Equal(t, "ORD-2026-00001", first)

	second, err := g.Next(context.Background(), NameOrder)
	require.NoError(t, err)
	require.Equal(t, "ORD-2026-00002", second)

	inv, err := g.Next(context.Background(), NameInvoice)
	require.NoError(t, err)
	require.Equal(t, "INV-2026-00001", inv)
}

func TestGeneratorRestartsPerYear(t *testing.T) {
	store := &memStore{}
	g := NewGenerator(store)

	g.now = func() time.Time { return time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC) }
	last, err := g.Next(context.Background(), NamePO)
	require.NoError(t, err)
	require.Equal(t, "PO-2026-00001", last)

	g.now = func() time.Time { return time.Date(2027, 1, 1, 0, 1, 0, 0, time.UTC) }
	next, err := g.Next(context.Background(), NamePO)
	require.NoError(t, err)
	require.Equal(t, "PO-2027-00001", next)
}

func TestGeneratorWrapsStoreErrors(t *testing.T) {
	g := NewGenerator(&memStore{err: errors.New("boom")})

	_, err := g.Next(context.Background(), NameShipment)
	require.Error(t, err)
	require.Contains(t, err.Error(), "SHP")
}
