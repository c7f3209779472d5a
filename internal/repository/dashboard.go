package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockroom/internal/domain/dashboard"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

const (
	dashboardTotalsSQL = `SELECT
		(SELECT count(*) FROM products),
		(SELECT count(*) FROM orders),
		(SELECT count(*) FROM orders WHERE status = 'Pending'),
		(SELECT count(*) FROM products
			WHERE minimum_stock_level IS NOT NULL AND quantity_in_stock <= minimum_stock_level),
		(SELECT count(*) FROM purchases),
		(SELECT count(*) FROM outgoings),
		(SELECT COALESCE(sum(quantity_in_stock * selling_price), 0) FROM products)`

	recentOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY order_date DESC, id DESC LIMIT $1`

	lowStockLimitedSQL = lowStockProductsSQL + ` LIMIT $1`

	recentPurchasesSQL = `SELECT pu.purchase_date, p.name, pu.quantity
		FROM purchases pu JOIN products p ON p.id = pu.product_id
		ORDER BY pu.purchase_date DESC, pu.id DESC LIMIT $1`

	recentOutgoingsSQL = `SELECT og.outgoing_date, p.name, og.quantity, og.reason
		FROM outgoings og JOIN products p ON p.id = og.product_id
		ORDER BY og.outgoing_date DESC, og.id DESC LIMIT $1`

	recentOrderActivitySQL = `SELECT order_date, order_number, customer_name
		FROM orders ORDER BY order_date DESC, id DESC LIMIT $1`
)

var _ dashboard.Repository = (*DashboardRepository)(nil)

// DashboardRepository implements dashboard.Repository backed by PostgreSQL.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository returns a DashboardRepository that uses the given pool.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// Totals counts rows across the catalog, ledger and order tables.
func (r *DashboardRepository) Totals(ctx context.Context) (dashboard.Totals, error) {
	var t dashboard.Totals
	err := r.pool.QueryRow(ctx, dashboardTotalsSQL).Scan(
		&t.Products, &t.Orders, &t.PendingOrders, &t.LowStockProducts,
		&t.Purchases, &t.Outgoings, &t.InventoryValue,
	)
	if err != nil {
		return t, fmt.Errorf("counting dashboard totals: %w", err)
	}
	return t, nil
}

// RecentOrders returns the newest orders without items.
func (r *DashboardRepository) RecentOrders(ctx context.Context, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, recentOrdersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// LowStock returns the products furthest below their minimum level.
func (r *DashboardRepository) LowStock(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, lowStockLimitedSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing low stock products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Activity reads the newest purchases, outgoings and orders in one batch.
func (r *DashboardRepository) Activity(ctx context.Context, perKind int) ([]dashboard.Activity, error) {
	var (
		batch pgx.Batch
		out   []dashboard.Activity
	)
	batch.Queue(recentPurchasesSQL, perKind).Query(func(rows pgx.Rows) error {
		list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.Activity, error) {
			a := dashboard.Activity{Kind: dashboard.KindPurchase}
			return a, row.Scan(&a.At, &a.ProductName, &a.Quantity)
		})
		out = append(out, list...)
		return err
	})
	batch.Queue(recentOutgoingsSQL, perKind).Query(func(rows pgx.Rows) error {
		list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.Activity, error) {
			a := dashboard.Activity{Kind: dashboard.KindOutgoing}
			return a, row.Scan(&a.At, &a.ProductName, &a.Quantity, &a.Reason)
		})
		out = append(out, list...)
		return err
	})
	batch.Queue(recentOrderActivitySQL, perKind).Query(func(rows pgx.Rows) error {
		list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.Activity, error) {
			a := dashboard.Activity{Kind: dashboard.KindOrder}
			return a, row.Scan(&a.At, &a.OrderNumber, &a.CustomerName)
		})
		out = append(out, list...)
		return err
	})

	if err := r.pool.SendBatch(ctx, &batch).Close(); err != nil {
		return nil, fmt.Errorf("reading recent activity: %w", err)
	}
	return out, nil
}
