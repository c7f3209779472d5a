// Package inventory records stock movements that happen outside the order
// lifecycle: purchases from suppliers and outgoing shipments, write-offs and
// returns.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockroom/internal/domain/product"
)

// ErrInsufficientStock is matched by InsufficientStockError.
var ErrInsufficientStock = errors.New("insufficient stock")

// InsufficientStockError is returned when an outgoing movement asks for more
// than is on hand.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Reason classifies an outgoing movement.
type Reason string

const (
	ReasonSale     Reason = "Sale"
	ReasonDamage   Reason = "Damage"
	ReasonTransfer Reason = "Transfer"
	ReasonReturn   Reason = "Return"
)

// ParseReason maps a reason name to a Reason, case-insensitively. An empty
// string means Sale.
func ParseReason(s string) (Reason, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ReasonSale, nil
	}
	for _, r := range []Reason{ReasonSale, ReasonDamage, ReasonTransfer, ReasonReturn} {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", &product.ValidationError{Field: "reason", Reason: fmt.Sprintf("unknown value %q", s)}
}

// Delta returns the signed stock change for moving qty units for this reason.
func (r Reason) Delta(qty int) int {
	if r == ReasonReturn {
		return qty
	}
	return -qty
}

// Purchase is stock received from a supplier.
type Purchase struct {
	ID            int64
	ProductID     int64
	ProductName   string
	Quantity      int
	PurchasePrice decimal.Decimal
	TotalAmount   decimal.Decimal
	Supplier      string
	PurchaseDate  time.Time
	Notes         string
}

// Outgoing is stock leaving the warehouse, or coming back for a Return.
type Outgoing struct {
	ID            int64
	ProductID     int64
	ProductName   string
	Quantity      int
	OutgoingPrice *decimal.Decimal
	TotalAmount   *decimal.Decimal
	Recipient     string
	OutgoingDate  time.Time
	Reason        Reason
	OrderID       *int64
	Notes         string
}

// Filter narrows ledger listings.
type Filter struct {
	ProductID int64
	From      *time.Time
	To        *time.Time
}

// Tx is the transactional ledger store.
type Tx interface {
	// LockProduct loads and locks a product row.
	LockProduct(ctx context.Context, id int64) (*product.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int, at time.Time) error
	InsertPurchase(ctx context.Context, p *Purchase) error
	InsertOutgoing(ctx context.Context, o *Outgoing) error
}

// Repository provides ledger reads and transactional writes.
type Repository interface {
	ListPurchases(ctx context.Context, f Filter) ([]Purchase, error)
	ListOutgoings(ctx context.Context, f Filter) ([]Outgoing, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
