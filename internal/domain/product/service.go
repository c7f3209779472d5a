package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/stockroom/internal/domain/auth"
)

// Service implements catalog management on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a product Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns products matching the filter ordered by name.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	f.Search = strings.TrimSpace(f.Search)
	f.Category = strings.TrimSpace(f.Category)
	return s.repo.List(ctx, f)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// LowStock returns products at or below their minimum stock level.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	return s.repo.LowStock(ctx)
}

// Categories returns the distinct product categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, actor auth.Actor, p *Product) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	normalize(p)
	if err := p.Validate(); err != nil {
		return err
	}
	p.CreatedAt = s.now()
	p.LastUpdated = nil
	if err := s.repo.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	return nil
}

// Update overwrites an existing product and stamps LastUpdated.
func (s *Service) Update(ctx context.Context, actor auth.Actor, p *Product) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	normalize(p)
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now()
	p.LastUpdated = &now
	if err := s.repo.Update(ctx, p); err != nil {
		return errors.Wrap(err, "update product")
	}
	return nil
}

// Delete removes a product unless order items or ledger entries reference it.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id int64) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	refs, err := s.repo.References(ctx, id)
	if err != nil {
		return errors.Wrap(err, "count references")
	}
	if refs.Any() {
		return &InUseError{
			ProductID:  id,
			OrderItems: refs.OrderItems,
			Purchases:  refs.Purchases,
			Outgoings:  refs.Outgoings,
		}
	}
	return s.repo.Delete(ctx, id)
}

func normalize(p *Product) {
	p.Name = strings.TrimSpace(p.Name)
	p.SKU = strings.TrimSpace(p.SKU)
	p.Category = strings.TrimSpace(p.Category)
	p.Supplier = strings.TrimSpace(p.Supplier)
	p.CostPrice = p.CostPrice.Round(2)
	p.SellingPrice = p.SellingPrice.Round(2)
}
