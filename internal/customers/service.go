package customers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service manages the customer book.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService wires the customers service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Create adds a customer. Email must be unique among active customers.
func (s *Service) Create(ctx context.Context, input Input, actorID int64) (*Customer, error) {
	c, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "customer.created", c.ID, map[string]any{"email": c.Email})
	return c, nil
}

// Get returns one active customer.
func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of customers.
func (s *Service) List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Customer, shared.PageMeta, error) {
	customers, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return customers, shared.NewPageMeta(total, page), nil
}

// Update replaces the customer's mutable fields.
func (s *Service) Update(ctx context.Context, id int64, input Input, actorID int64) (*Customer, error) {
	c, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "customer.updated", id, nil)
	return c, nil
}

// Delete soft-deletes a customer. Historical orders keep the reference.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "customer.deleted", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "customer",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
