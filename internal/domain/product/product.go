package product

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// MaxQuantity is the largest quantity a stock or line-item column holds.
const MaxQuantity = math.MaxInt32

// ErrDuplicateSKU is returned when another product already uses the SKU.
var ErrDuplicateSKU = errors.New("sku already exists")

// NotFoundError identifies the missing product.
type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InUseError is returned when deleting a product that ledger entries or
// order items still reference.
type InUseError struct {
	ProductID  int64
	OrderItems int
	Purchases  int
	Outgoings  int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("product %d is referenced by %d order items, %d purchases, %d outgoings",
		e.ProductID, e.OrderItems, e.Purchases, e.Outgoings)
}

// ValidationError reports an invalid product field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Product is a stock-keeping unit tracked by the inventory.
type Product struct {
	ID                int64
	Name              string
	Description       string
	SKU               string
	QuantityInStock   int
	CostPrice         decimal.Decimal
	SellingPrice      decimal.Decimal
	Category          string
	Supplier          string
	MinimumStockLevel *int
	CreatedAt         time.Time
	LastUpdated       *time.Time
}

// IsLowStock reports whether stock has reached the configured minimum level.
// Products without a minimum level are never low.
func (p Product) IsLowStock() bool {
	return p.MinimumStockLevel != nil && p.QuantityInStock <= *p.MinimumStockLevel
}

// Validate checks the invariants enforced on create and update.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case p.SKU == "":
		return &ValidationError{Field: "sku", Reason: "is required"}
	case p.Category == "":
		return &ValidationError{Field: "category", Reason: "is required"}
	case p.QuantityInStock < 0:
		return &ValidationError{Field: "quantity_in_stock", Reason: "must be 0 or greater"}
	case p.QuantityInStock > MaxQuantity:
		return &ValidationError{Field: "quantity_in_stock", Reason: fmt.Sprintf("must not exceed %d", MaxQuantity)}
	case p.CostPrice.IsNegative():
		return &ValidationError{Field: "cost_price", Reason: "must be 0 or greater"}
	case p.SellingPrice.IsNegative():
		return &ValidationError{Field: "selling_price", Reason: "must be 0 or greater"}
	case p.MinimumStockLevel != nil && *p.MinimumStockLevel < 0:
		return &ValidationError{Field: "minimum_stock_level", Reason: "must be 0 or greater"}
	case p.MinimumStockLevel != nil && *p.MinimumStockLevel > MaxQuantity:
		return &ValidationError{Field: "minimum_stock_level", Reason: fmt.Sprintf("must not exceed %d", MaxQuantity)}
	}
	return nil
}

// Filter narrows product listings.
type Filter struct {
	// Search matches name, SKU, or description (case-insensitive substring).
	Search   string
	Category string
}

// References counts the rows that point at a product.
type References struct {
	OrderItems int
	Purchases  int
	Outgoings  int
}

// Any reports whether at least one reference exists.
func (r References) Any() bool {
	return r.OrderItems > 0 || r.Purchases > 0 || r.Outgoings > 0
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	LowStock(ctx context.Context) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	References(ctx context.Context, id int64) (References, error)
	Delete(ctx context.Context, id int64) error
}
