package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/stockroom/internal/domain/product"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusPaid       Status = "Paid"
	StatusDenied     Status = "Denied"
	StatusCancelled  Status = "Cancelled"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
)

// Statuses lists every known status in display order.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusPaid,
	StatusDenied,
	StatusCancelled,
	StatusShipped,
	StatusDelivered,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus maps a status name to a Status, case-insensitively.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, known := range Statuses {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", &InvalidStatusError{Value: s}
}

// StockEffect is what a status change does to product stock.
type StockEffect int

const (
	StockUnchanged StockEffect = iota
	// StockReserved deducts every item's quantity from its product.
	StockReserved
	// StockReleased returns every item's quantity to its product.
	StockReleased
)

// Effect returns the stock effect of overwriting status from with to.
// Only entering Processing and leaving Processing for Cancelled move stock;
// every other change is a label change.
func Effect(from, to Status) StockEffect {
	switch {
	case to == StatusProcessing && from != StatusProcessing:
		return StockReserved
	case to == StatusCancelled && from == StatusProcessing:
		return StockReleased
	default:
		return StockUnchanged
	}
}

// Customer holds the optional contact details captured with an order.
type Customer struct {
	Name            string
	Email           string
	Phone           string
	ShippingAddress string
	Notes           string
}

// Order is a customer order and its line items.
type Order struct {
	ID          int64
	Number      string
	Customer    Customer
	OrderDate   time.Time
	Status      Status
	TotalAmount decimal.Decimal
	PaymentDate *time.Time
	// StockReservedAt is set when the order took stock at creation (admin
	// placement) and is still Pending. Leaving Pending clears it.
	StockReservedAt *time.Time
	Items           []Item
}

// Item is a single order line. UnitPrice is captured at order time.
type Item struct {
	ID         int64
	OrderID    int64
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// effect is Effect for this order. An order still holding the stock taken
// at creation releases it when cancelled or denied and never reserves twice.
func (o *Order) effect(to Status) StockEffect {
	if o.StockReservedAt == nil {
		return Effect(o.Status, to)
	}
	switch to {
	case StatusCancelled, StatusDenied:
		return StockReleased
	default:
		return StockUnchanged
	}
}

// moveTo records a committed status change.
func (o *Order) moveTo(to Status) {
	o.Status = to
	if to != StatusPending {
		o.StockReservedAt = nil
	}
}

// demand sums item quantities per product.
func (o *Order) demand() map[int64]int {
	d := make(map[int64]int, len(o.Items))
	for _, it := range o.Items {
		d[it.ProductID] += it.Quantity
	}
	return d
}

// Filter narrows order listings.
type Filter struct {
	// Search matches order number, customer name or customer email.
	Search string
	// Status restricts results to a single status when non-empty.
	Status Status
	// Limit caps the number of results; zero means no limit.
	Limit int
}

// Orders is the transactional order store.
type Orders interface {
	// LockOrder loads an order with its items and locks it for the
	// remainder of the transaction.
	LockOrder(ctx context.Context, id int64) (*Order, error)
	// InsertOrder persists the order and its items, assigning IDs.
	InsertOrder(ctx context.Context, o *Order) error
	// DeleteOrders removes orders placed before the cutoff, or every order
	// when before is zero, together with their items. It returns the number
	// of orders removed.
	DeleteOrders(ctx context.Context, before time.Time) (int64, error)
	// SetStatus moves the order from one status to another. A nil
	// paymentDate leaves the stored value untouched. Any status other than
	// Pending clears StockReservedAt. It returns ErrConflict when the stored
	// status no longer equals from.
	SetStatus(ctx context.Context, id int64, from, to Status, paymentDate *time.Time) error
}

// Inventory is the transactional view of product stock.
type Inventory interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]product.Product, error)
	// LockProducts is GetProducts with row locks taken in ascending id order.
	LockProducts(ctx context.Context, ids []int64) (map[int64]product.Product, error)
	// AdjustStock adds delta to the product's stock and stamps LastUpdated.
	// It returns ErrConflict if the result would be negative.
	AdjustStock(ctx context.Context, productID int64, delta int, at time.Time) error
}

// Tx groups the stores that commit together.
type Tx interface {
	Orders
	Inventory
}

// Repository provides order reads and transactional writes.
type Repository interface {
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// WithinTx runs fn in a single transaction, committing only when fn
	// returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
