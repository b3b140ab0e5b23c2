// Package sequence issues unique, monotonically increasing document
// numbers per name and calendar year (ORD-2026-00042).
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Document sequence names.
const (
	NameOrder    = "ORD"
	NamePO       = "PO"
	NameInvoice  = "INV"
	NameShipment = "SHP"
)

// Store abstracts the counter persistence so services can run against a
// transaction or the pool.
type Store interface {
	NextValue(ctx context.Context, name string, year int) (int64, error)
}

// Generator formats document numbers from the backing counter.
type Generator struct {
	store Store
	now   func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// Next returns the next document number for the given sequence name.
func (g *Generator) Next(ctx context.Context, name string) (string, error) {
	year := g.now().UTC().Year()
	value, err := g.store.NextValue(ctx, name, year)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", name, err)
	}
	return fmt.Sprintf("%s-%d-%05d", name, year, value), nil
}

// PGStore increments counters in the doc_sequences table. The upsert is
// atomic per row, so concurrent callers never observe the same value.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PGStore over a pool or transaction.
func NewPGStore(q db.DBTX) *PGStore {
	return &PGStore{db: q}
}

// NextValue increments and returns the counter for (name, year).
func (s *PGStore) NextValue(ctx context.Context, name string, year int) (int64, error) {
	var value int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO doc_sequences (name, year, value) VALUES ($1, $2, 1)
		ON CONFLICT (name, year) DO UPDATE SET value = doc_sequences.value + 1
		RETURNING value`, name, year).Scan(&value)
	return value, err
}

var _ Store = (*PGStore)(nil)
