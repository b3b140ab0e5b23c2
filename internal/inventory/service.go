package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service orchestrates catalogue maintenance and manual stock movements.
type Service struct {
	repo   Repository
	engine *Engine
	cache  *LowStockCache
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService wires the inventory service.
func NewService(repo Repository, engine *Engine, cache *LowStockCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, cache: cache, audit: audit, logger: logger}
}

// CreateProduct inserts a product and its zeroed inventory record in one
// transaction.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput, actorID int64) (*ProductWithStock, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertProduct(ctx, input)
		if err != nil {
			return err
		}
		return tx.InsertRecord(ctx, Record{
			ProductID:    id,
			ReorderPoint: input.ReorderPoint,
			ReorderQty:   input.ReorderQty,
			Location:     input.Location,
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "product.created", id, map[string]any{"sku": input.SKU})
	return s.repo.GetProduct(ctx, id)
}

// GetProduct returns one product with its stock counters.
func (s *Service) GetProduct(ctx context.Context, id int64) (*ProductWithStock, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a filtered page of products.
func (s *Service) ListProducts(ctx context.Context, filter ListFilter, page shared.Pagination) ([]ProductWithStock, shared.PageMeta, error) {
	products, total, err := s.repo.ListProducts(ctx, filter, page)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return products, shared.NewPageMeta(total, page), nil
}

// UpdateProduct replaces the mutable product fields.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput, actorID int64) (*ProductWithStock, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateProduct(ctx, id, input)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "product.updated", id, nil)
	s.invalidateLowStock(ctx)
	return s.repo.GetProduct(ctx, id)
}

// DeleteProduct soft-deletes a product. Ledger history and order lines
// referencing it stay intact.
func (s *Service) DeleteProduct(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "product.deleted", id, nil)
	s.invalidateLowStock(ctx)
	return nil
}

// AdjustStock applies a manual stock movement through the engine.
func (s *Service) AdjustStock(ctx context.Context, input AdjustInput) (*ProductWithStock, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := s.engine.Adjust(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory.adjusted", input.ProductID, map[string]any{
		"type":  string(input.Type),
		"delta": input.Delta,
	})
	s.invalidateLowStock(ctx)
	return s.repo.GetProduct(ctx, input.ProductID)
}

// ListTransactions returns the full ledger for a product, newest first.
func (s *Service) ListTransactions(ctx context.Context, productID int64) ([]LedgerEntryWithActor, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, productID)
}

// LowStock returns products at or below their reorder point, serving the
// cached snapshot when one is present.
func (s *Service) LowStock(ctx context.Context) ([]ProductWithStock, error) {
	if products, ok, err := s.cache.Get(ctx); err == nil && ok {
		return products, nil
	} else if err != nil {
		s.logger.Warn("low stock cache read failed", slog.Any("error", err))
	}
	products, err := s.repo.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, products); err != nil {
		s.logger.Warn("low stock cache write failed", slog.Any("error", err))
	}
	return products, nil
}

// RefreshLowStock rebuilds the cached snapshot from the database. The
// background scan calls this on a schedule.
func (s *Service) RefreshLowStock(ctx context.Context) (int, error) {
	products, err := s.repo.LowStock(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, products); err != nil {
		return 0, err
	}
	return len(products), nil
}

// Categories lists the distinct product categories in use.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidateLowStock(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("low stock cache invalidation failed", slog.Any("error", err))
	}
}
