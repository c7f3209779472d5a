// Package dashboard builds the admin overview: catalog and order totals, the
// latest orders, the products running lowest and a merged activity feed.
package dashboard

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

// Summary limits.
const (
	RecentOrders    = 5
	LowStockShown   = 5
	ActivityPerKind = 3
	ActivityShown   = 10
)

// Totals are the headline counters.
type Totals struct {
	Products         int64
	Orders           int64
	PendingOrders    int64
	LowStockProducts int64
	Purchases        int64
	Outgoings        int64
	// InventoryValue is the sum of stock times selling price.
	InventoryValue decimal.Decimal
}

// ActivityKind names the source of an activity entry.
type ActivityKind string

const (
	KindPurchase ActivityKind = "purchase"
	KindOutgoing ActivityKind = "outgoing"
	KindOrder    ActivityKind = "order"
)

// Activity is one entry of the recent activity feed.
type Activity struct {
	Kind ActivityKind
	At   time.Time

	// Set for purchases and outgoings.
	ProductName string
	Quantity    int
	// Set for outgoings.
	Reason string
	// Set for orders.
	OrderNumber  string
	CustomerName string
}

// Description renders the entry as a single line.
func (a Activity) Description() string {
	switch a.Kind {
	case KindPurchase:
		return fmt.Sprintf("Purchased %d %s", a.Quantity, a.ProductName)
	case KindOutgoing:
		return fmt.Sprintf("Outgoing %d %s - %s", a.Quantity, a.ProductName, a.Reason)
	default:
		return fmt.Sprintf("Order %s - %s", a.OrderNumber, a.CustomerName)
	}
}

// Summary is the dashboard payload.
type Summary struct {
	Totals       Totals
	RecentOrders []order.Order
	LowStock     []product.Product
	Activity     []Activity
}

// Repository reads the dashboard sources.
type Repository interface {
	Totals(ctx context.Context) (Totals, error)
	// RecentOrders returns the newest orders without their items.
	RecentOrders(ctx context.Context, limit int) ([]order.Order, error)
	// LowStock returns low stock products ordered by stock ascending.
	LowStock(ctx context.Context, limit int) ([]product.Product, error)
	// Activity returns up to perKind of the newest entries of every kind.
	Activity(ctx context.Context, perKind int) ([]Activity, error)
}

// Service assembles Summary values.
type Service struct {
	repo Repository
}

// NewService creates a dashboard Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Summary loads every section concurrently. Admin only.
func (s *Service) Summary(ctx context.Context, actor auth.Actor) (*Summary, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var sum Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sum.Totals, err = s.repo.Totals(ctx)
		return err
	})
	g.Go(func() (err error) {
		sum.RecentOrders, err = s.repo.RecentOrders(ctx, RecentOrders)
		return err
	})
	g.Go(func() (err error) {
		sum.LowStock, err = s.repo.LowStock(ctx, LowStockShown)
		return err
	})
	g.Go(func() (err error) {
		sum.Activity, err = s.repo.Activity(ctx, ActivityPerKind)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum.Activity = mergeActivity(sum.Activity)
	return &sum, nil
}

// mergeActivity orders entries newest first and keeps ActivityShown of them.
func mergeActivity(in []Activity) []Activity {
	slices.SortStableFunc(in, func(a, b Activity) int {
		return b.At.Compare(a.At)
	})
	if len(in) > ActivityShown {
		in = in[:ActivityShown]
	}
	return in
}
