package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a lifecycle change.
type EventType string

const (
	EventCreated       EventType = "created"
	EventAccepted      EventType = "accepted"
	EventDenied        EventType = "denied"
	EventCancelled     EventType = "cancelled"
	EventStatusChanged EventType = "status_changed"
)

// Event describes a committed lifecycle change.
type Event struct {
	Type           EventType
	OrderID        int64
	OrderNumber    string
	Status         Status
	PreviousStatus Status
	TotalAmount    decimal.Decimal
	// StockMoved is the signed sum of stock deltas applied by the change.
	StockMoved int
	Actor      string
	OccurredAt time.Time
}

// Notifier receives events after the transaction that produced them commits.
// Implementations must not block the caller for long and must not fail the
// operation; delivery errors are theirs to handle.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NopNotifier discards events.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Event) {}
