package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

const orderColumns = `id, order_number, customer_name, customer_email, customer_phone, shipping_address,
	order_date, status, total_amount, payment_date, notes, stock_reserved_at`

const (
	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR order_number ILIKE '%' || $1::text || '%'
			OR customer_name ILIKE '%' || $1::text || '%' OR customer_email ILIKE '%' || $1::text || '%')
		AND ($2::text = '' OR status = $2::text)
		ORDER BY order_date DESC, id DESC
		LIMIT NULLIF($3::int, 0)`

	listOrderItemsSQL = `SELECT id, order_id, product_id, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`

	insertOrderSQL = `INSERT INTO orders (order_number, customer_name, customer_email, customer_phone,
		shipping_address, order_date, status, total_amount, payment_date, notes, stock_reserved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	// Guarded on the expected current status so a lost race is detected.
	setOrderStatusSQL = `UPDATE orders
		SET status = $3::text,
			payment_date = COALESCE($4::timestamptz, payment_date),
			stock_reserved_at = CASE WHEN $3::text = 'Pending' THEN stock_reserved_at END
		WHERE id = $1 AND status = $2`

	// Items go with their orders through ON DELETE CASCADE.
	deleteOrdersSQL = `DELETE FROM orders WHERE $1::timestamptz IS NULL OR order_date < $1::timestamptz`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	return loadOrder(ctx, r.pool, getOrderSQL, id)
}

// List returns orders matching the filter, newest first, with their items.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.Search, string(f.Status), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}
	items, err := listItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return orders, nil
}

// WithinTx runs fn in a single database transaction.
func (r *OrderRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

// orderTx implements order.Tx on top of a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	return loadOrder(ctx, t.tx, lockOrderSQL, id)
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.Number, o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Customer.ShippingAddress,
		o.OrderDate, string(o.Status), o.TotalAmount, o.PaymentDate, o.Customer.Notes, o.StockReservedAt,
	).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(order.ErrConflict, "order number %s already taken", o.Number)
		}
		return fmt.Errorf("inserting order %s: %w", o.Number, err)
	}

	batch := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		batch.Queue(insertOrderItemSQL, o.ID, it.ProductID, it.Quantity, it.UnitPrice, it.TotalPrice).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&it.ID)
			})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting items of order %s: %w", o.Number, err)
	}
	return nil
}

func (t *orderTx) DeleteOrders(ctx context.Context, before time.Time) (int64, error) {
	var cutoff *time.Time
	if !before.IsZero() {
		cutoff = &before
	}
	tag, err := t.tx.Exec(ctx, deleteOrdersSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *orderTx) SetStatus(ctx context.Context, id int64, from, to order.Status, paymentDate *time.Time) error {
	tag, err := t.tx.Exec(ctx, setOrderStatusSQL, id, string(from), string(to), paymentDate)
	if err != nil {
		return fmt.Errorf("setting status of order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(order.ErrConflict, "order %d is no longer %s", id, from)
	}
	return nil
}

func (t *orderTx) GetProducts(ctx context.Context, ids []int64) (map[int64]product.Product, error) {
	return productsByID(ctx, t.tx, getProductsByIDsSQL, ids)
}

func (t *orderTx) LockProducts(ctx context.Context, ids []int64) (map[int64]product.Product, error) {
	return productsByID(ctx, t.tx, lockProductsByIDsSQL, ids)
}

func (t *orderTx) AdjustStock(ctx context.Context, productID int64, delta int, at time.Time) error {
	ok, err := adjustStock(ctx, t.tx, productID, delta, at)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(order.ErrConflict, "stock of product %d changed", productID)
	}
	return nil
}

func loadOrder(ctx context.Context, q querier, sql string, id int64) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	if o.Items, err = listItems(ctx, q, []int64{id}); err != nil {
		return nil, err
	}
	return &o, nil
}

func listItems(ctx context.Context, q querier, orderIDs []int64) ([]order.Item, error) {
	rows, err := q.Query(ctx, listOrderItemsSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	return items, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Customer.ShippingAddress,
		&o.OrderDate, &status, &o.TotalAmount, &o.PaymentDate, &o.Customer.Notes, &o.StockReservedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice)
	return it, err
}
