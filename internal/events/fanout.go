package events

import (
	"context"

	"github.com/xenking/stockroom/internal/domain/order"
)

// Fanout delivers each event to every notifier in order.
type Fanout []order.Notifier

// Notify implements order.Notifier.
func (f Fanout) Notify(ctx context.Context, e order.Event) {
	for _, n := range f {
		n.Notify(ctx, e)
	}
}
