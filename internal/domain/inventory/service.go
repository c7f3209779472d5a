package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/product"
)

// Service records ledger entries and applies them to product stock.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an inventory Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecordPurchase adds purchased units to stock.
func (s *Service) RecordPurchase(ctx context.Context, actor auth.Actor, p *Purchase) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if err := checkQuantity(p.Quantity); err != nil {
		return err
	}
	if p.PurchasePrice.IsNegative() {
		return &product.ValidationError{Field: "purchase_price", Reason: "must not be negative"}
	}
	p.Supplier = strings.TrimSpace(p.Supplier)
	p.Notes = strings.TrimSpace(p.Notes)
	p.PurchasePrice = p.PurchasePrice.Round(2)
	p.TotalAmount = p.PurchasePrice.Mul(decimal.NewFromInt(int64(p.Quantity))).Round(2)
	p.PurchaseDate = s.now()

	return s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		prod, err := tx.LockProduct(ctx, p.ProductID)
		if err != nil {
			return err
		}
		p.ProductName = prod.Name
		if err := checkStockCeiling(prod, p.Quantity); err != nil {
			return err
		}
		if p.Supplier == "" {
			p.Supplier = prod.Supplier
		}
		if err := tx.AdjustStock(ctx, p.ProductID, p.Quantity, p.PurchaseDate); err != nil {
			return errors.Wrap(err, "add stock")
		}
		if err := tx.InsertPurchase(ctx, p); err != nil {
			return errors.Wrap(err, "insert purchase")
		}
		return nil
	})
}

// RecordOutgoing applies an outgoing movement. Returns add stock back; every
// other reason deducts it after checking availability.
func (s *Service) RecordOutgoing(ctx context.Context, actor auth.Actor, o *Outgoing) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if err := checkQuantity(o.Quantity); err != nil {
		return err
	}
	if o.Reason == "" {
		o.Reason = ReasonSale
	}
	if _, err := ParseReason(string(o.Reason)); err != nil {
		return err
	}
	if o.OutgoingPrice != nil {
		if o.OutgoingPrice.IsNegative() {
			return &product.ValidationError{Field: "outgoing_price", Reason: "must not be negative"}
		}
		price := o.OutgoingPrice.Round(2)
		total := price.Mul(decimal.NewFromInt(int64(o.Quantity))).Round(2)
		o.OutgoingPrice, o.TotalAmount = &price, &total
	} else {
		o.TotalAmount = nil
	}
	o.Recipient = strings.TrimSpace(o.Recipient)
	o.Notes = strings.TrimSpace(o.Notes)
	o.OutgoingDate = s.now()

	return s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		prod, err := tx.LockProduct(ctx, o.ProductID)
		if err != nil {
			return err
		}
		o.ProductName = prod.Name
		delta := o.Reason.Delta(o.Quantity)
		if err := checkStockCeiling(prod, delta); err != nil {
			return err
		}
		if prod.QuantityInStock+delta < 0 {
			return &InsufficientStockError{
				ProductID: prod.ID,
				Requested: o.Quantity,
				Available: prod.QuantityInStock,
			}
		}
		if err := tx.AdjustStock(ctx, o.ProductID, delta, o.OutgoingDate); err != nil {
			return errors.Wrap(err, "adjust stock")
		}
		if err := tx.InsertOutgoing(ctx, o); err != nil {
			return errors.Wrap(err, "insert outgoing")
		}
		return nil
	})
}

// Purchases lists purchases, newest first.
func (s *Service) Purchases(ctx context.Context, actor auth.Actor, f Filter) ([]Purchase, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.repo.ListPurchases(ctx, f)
}

// Outgoings lists outgoing movements, newest first.
func (s *Service) Outgoings(ctx context.Context, actor auth.Actor, f Filter) ([]Outgoing, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.repo.ListOutgoings(ctx, f)
}

func checkQuantity(q int) error {
	switch {
	case q <= 0:
		return &product.ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	case q > product.MaxQuantity:
		return &product.ValidationError{Field: "quantity", Reason: fmt.Sprintf("must not exceed %d", product.MaxQuantity)}
	}
	return nil
}

// checkStockCeiling rejects a delta that would overflow the stock column.
func checkStockCeiling(p *product.Product, delta int) error {
	if delta > 0 && p.QuantityInStock > product.MaxQuantity-delta {
		return &product.ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("would raise stock of product %d above %d", p.ID, product.MaxQuantity),
		}
	}
	return nil
}
