package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/product"
)

// ItemRequest is a requested order line. A nil UnitPrice takes the product's
// current selling price.
type ItemRequest struct {
	ProductID int64
	Quantity  int
	UnitPrice *decimal.Decimal
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	Customer Customer
	Items    []ItemRequest
}

// CancelResult is the outcome of Cancel. AlreadyCancelled is set when the
// order was cancelled before the call and nothing changed.
type CancelResult struct {
	Order            *Order
	AlreadyCancelled bool
}

// Service implements the order lifecycle: placement, review, cancellation and
// manual status changes, keeping product stock consistent with order status.
type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
	number   func(time.Time) string
}

// NewService creates an order Service. A nil notifier discards events.
func NewService(repo Repository, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		number:   NewNumber,
	}
}

// NewNumber generates an order number of the form ORD-YYYYMMDD-XXXXXXXX.
func NewNumber(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), strings.ToUpper(suffix))
}

// Get returns a single order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	f.Search = strings.TrimSpace(f.Search)
	if f.Status != "" && !f.Status.Valid() {
		return nil, &InvalidStatusError{Value: string(f.Status)}
	}
	return s.repo.List(ctx, f)
}

// Pending returns the admin review queue.
func (s *Service) Pending(ctx context.Context, actor auth.Actor) ([]Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Filter{Status: StatusPending})
}

// Create places an order in Pending status.
//
// Orders placed by a user reserve nothing until accepted. Orders placed by an
// admin deduct stock immediately and are marked with StockReservedAt; a line
// asking for more than is on hand is clamped to the available quantity.
// Unit prices are rounded to cents.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, &InvalidItemError{Index: i, ProductID: it.ProductID, Reason: "quantity must be greater than 0"}
		}
		if it.Quantity > product.MaxQuantity {
			return nil, &InvalidItemError{
				Index:     i,
				ProductID: it.ProductID,
				Reason:    fmt.Sprintf("quantity must not exceed %d", product.MaxQuantity),
			}
		}
		if it.UnitPrice != nil && it.UnitPrice.IsNegative() {
			return nil, &InvalidItemError{Index: i, ProductID: it.ProductID, Reason: "unit price must not be negative"}
		}
	}

	customer := normalizeCustomer(req.Customer, actor)
	now := s.now()
	o := &Order{
		Number:    s.number(now),
		Customer:  customer,
		OrderDate: now,
		Status:    StatusPending,
	}

	var moved int
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ids := productIDs(req.Items)
		var (
			products map[int64]product.Product
			err      error
		)
		if actor.IsAdmin() {
			products, err = tx.LockProducts(ctx, ids)
		} else {
			products, err = tx.GetProducts(ctx, ids)
		}
		if err != nil {
			return errors.Wrap(err, "get products")
		}

		// Remaining stock per product while clamping admin lines.
		remaining := make(map[int64]int, len(products))
		for id, p := range products {
			remaining[id] = p.QuantityInStock
		}

		o.Items = make([]Item, 0, len(req.Items))
		total := decimal.Zero
		for _, it := range req.Items {
			p, ok := products[it.ProductID]
			if !ok {
				return &product.NotFoundError{ProductID: it.ProductID}
			}
			price := p.SellingPrice
			if it.UnitPrice != nil {
				price = *it.UnitPrice
			}
			price = price.Round(2)
			qty := it.Quantity
			if actor.IsAdmin() {
				qty = min(qty, remaining[it.ProductID])
				remaining[it.ProductID] -= qty
			}
			line := price.Mul(decimal.NewFromInt(int64(qty))).Round(2)
			o.Items = append(o.Items, Item{
				ProductID:  it.ProductID,
				Quantity:   qty,
				UnitPrice:  price,
				TotalPrice: line,
			})
			total = total.Add(line)
		}
		o.TotalAmount = total

		if actor.IsAdmin() {
			for _, id := range ids {
				delta := remaining[id] - products[id].QuantityInStock
				if err := tx.AdjustStock(ctx, id, delta, now); err != nil {
					return errors.Wrapf(err, "deduct stock for product %d", id)
				}
				moved += delta
			}
			o.StockReservedAt = &now
		}

		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, actor, o, EventCreated, "", moved)
	return o, nil
}

// Accept approves a pending order: stock for every line is checked, then
// deducted, and the order becomes Paid. Stock already taken at creation is
// not deducted again.
func (s *Service) Accept(ctx context.Context, actor auth.Actor, id int64) (*Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	var (
		o     *Order
		moved int
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, id); err != nil {
			return err
		}
		if o.Status != StatusPending {
			return &InvalidTransitionError{OrderID: id, Operation: "accept", From: o.Status}
		}
		now := s.now()
		if o.StockReservedAt == nil {
			if moved, err = reserve(ctx, tx, o, now); err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, id, StatusPending, StatusPaid, &now); err != nil {
			return err
		}
		o.moveTo(StatusPaid)
		o.PaymentDate = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, actor, o, EventAccepted, StatusPending, moved)
	return o, nil
}

// Deny rejects a pending order. Stock is untouched unless the order took it
// at creation, in which case it is returned.
func (s *Service) Deny(ctx context.Context, actor auth.Actor, id int64) (*Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	var (
		o     *Order
		moved int
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, id); err != nil {
			return err
		}
		if o.Status != StatusPending {
			return &InvalidTransitionError{OrderID: id, Operation: "deny", From: o.Status}
		}
		if o.effect(StatusDenied) == StockReleased {
			if moved, err = release(ctx, tx, o, s.now()); err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, id, StatusPending, StatusDenied, nil); err != nil {
			return err
		}
		o.moveTo(StatusDenied)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, actor, o, EventDenied, StatusPending, moved)
	return o, nil
}

// Cancel cancels an order. Stock is returned only when the order was in
// Processing or still holds the stock taken at creation; cancelling a
// cancelled order changes nothing. Users may cancel
// only orders placed under their own email.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id int64) (*CancelResult, error) {
	var (
		o     *Order
		prev  Status
		moved int
		noop  bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, id); err != nil {
			return err
		}
		if !actor.IsAdmin() && !strings.EqualFold(o.Customer.Email, actor.Email) {
			return auth.ErrForbidden
		}
		prev = o.Status
		if prev == StatusCancelled {
			noop = true
			return nil
		}
		if o.effect(StatusCancelled) == StockReleased {
			if moved, err = release(ctx, tx, o, s.now()); err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, id, prev, StatusCancelled, nil); err != nil {
			return err
		}
		o.moveTo(StatusCancelled)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return &CancelResult{Order: o, AlreadyCancelled: true}, nil
	}
	s.notify(ctx, actor, o, EventCancelled, prev, moved)
	return &CancelResult{Order: o}, nil
}

// UpdateStatus overwrites the status of an order. Entering Processing reserves
// stock and leaving Processing for Cancelled returns it; other moves only
// change the status. An order holding stock from creation keeps it when it
// moves on and returns it when cancelled or denied.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id int64, to Status) (*Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, &InvalidStatusError{Value: string(to)}
	}
	var (
		o     *Order
		prev  Status
		moved int
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, id); err != nil {
			return err
		}
		prev = o.Status
		now := s.now()
		switch o.effect(to) {
		case StockReserved:
			moved, err = reserve(ctx, tx, o, now)
		case StockReleased:
			moved, err = release(ctx, tx, o, now)
		}
		if err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id, prev, to, nil); err != nil {
			return err
		}
		o.moveTo(to)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, actor, o, EventStatusChanged, prev, moved)
	return o, nil
}

// Purge deletes orders placed before the cutoff, or all orders when before
// is zero, with their items. Product stock is not touched.
func (s *Service) Purge(ctx context.Context, actor auth.Actor, before time.Time) (int64, error) {
	if err := actor.RequireAdmin(); err != nil {
		return 0, err
	}
	var n int64
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		n, err = tx.DeleteOrders(ctx, before)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "delete orders")
	}
	return n, nil
}

func (s *Service) notify(ctx context.Context, actor auth.Actor, o *Order, typ EventType, prev Status, moved int) {
	s.notifier.Notify(ctx, Event{
		Type:           typ,
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		Status:         o.Status,
		PreviousStatus: prev,
		TotalAmount:    o.TotalAmount,
		StockMoved:     moved,
		Actor:          actor.Email,
		OccurredAt:     s.now(),
	})
}

// reserve checks every product of the order against current stock and, only
// if all are covered, deducts the aggregated quantities. It returns the
// signed stock delta applied.
func reserve(ctx context.Context, tx Tx, o *Order, at time.Time) (int, error) {
	demand := o.demand()
	ids := sortedKeys(demand)
	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return 0, errors.Wrap(err, "lock products")
	}

	// Report the first short product in item order.
	for _, it := range o.Items {
		want := demand[it.ProductID]
		p, ok := products[it.ProductID]
		if !ok {
			return 0, &StockInsufficientError{ProductID: it.ProductID, Requested: want}
		}
		if p.QuantityInStock < want {
			return 0, &StockInsufficientError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   want,
				Available:   p.QuantityInStock,
			}
		}
	}

	var moved int
	for _, id := range ids {
		if err := tx.AdjustStock(ctx, id, -demand[id], at); err != nil {
			return 0, errors.Wrapf(err, "deduct stock for product %d", id)
		}
		moved -= demand[id]
	}
	return moved, nil
}

// release returns the order's aggregated quantities to stock.
func release(ctx context.Context, tx Tx, o *Order, at time.Time) (int, error) {
	demand := o.demand()
	var moved int
	for _, id := range sortedKeys(demand) {
		if err := tx.AdjustStock(ctx, id, demand[id], at); err != nil {
			return 0, errors.Wrapf(err, "restore stock for product %d", id)
		}
		moved += demand[id]
	}
	return moved, nil
}

func normalizeCustomer(c Customer, actor auth.Actor) Customer {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.ShippingAddress = strings.TrimSpace(c.ShippingAddress)
	c.Notes = strings.TrimSpace(c.Notes)
	if c.Name == "" {
		c.Name = actor.Name
	}
	if c.Email == "" {
		c.Email = actor.Email
	}
	return c
}

func productIDs(items []ItemRequest) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func sortedKeys(m map[int64]int) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
