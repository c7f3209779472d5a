package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyItems is returned when an order is placed without items.
	ErrEmptyItems = errors.New("at least one item is required")
	// ErrNotFound is returned when the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a concurrent change invalidated the
	// operation's reads. Callers may retry from fresh reads.
	ErrConflict = errors.New("order was modified concurrently")
)

// InvalidItemError reports a malformed line item.
type InvalidItemError struct {
	Index     int
	ProductID int64
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d (product %d): %s", e.Index, e.ProductID, e.Reason)
}

// InvalidStatusError reports an unknown status name.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("unknown order status %q", e.Value)
}

// StockInsufficientError names the first product that cannot cover the order.
type StockInsufficientError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockInsufficientError) Error() string {
	name := e.ProductName
	if name == "" {
		name = "(unknown)"
	}
	return fmt.Sprintf("not enough stock for product %s (id %d): requested %d, available %d",
		name, e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError is returned when an operation requires a status the
// order is not in.
type InvalidTransitionError struct {
	OrderID   int64
	Operation string
	From      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s order %d in status %s", e.Operation, e.OrderID, e.From)
}
