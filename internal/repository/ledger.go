package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockroom/internal/domain/inventory"
	"github.com/xenking/stockroom/internal/domain/product"
)

const (
	ledgerFilterSQL = `WHERE ($1::bigint = 0 OR l.product_id = $1::bigint)
		AND ($2::timestamptz IS NULL OR %[1]s >= $2::timestamptz)
		AND ($3::timestamptz IS NULL OR %[1]s <= $3::timestamptz)`

	listPurchasesSQL = `SELECT l.id, l.product_id, p.name, l.quantity, l.purchase_price, l.total_amount,
		l.supplier, l.purchase_date, l.notes
		FROM purchases l JOIN products p ON p.id = l.product_id `

	listOutgoingsSQL = `SELECT l.id, l.product_id, p.name, l.quantity, l.outgoing_price, l.total_amount,
		l.recipient, l.outgoing_date, l.reason, l.order_id, l.notes
		FROM outgoings l JOIN products p ON p.id = l.product_id `

	insertPurchaseSQL = `INSERT INTO purchases (product_id, quantity, purchase_price, total_amount, supplier,
		purchase_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	insertOutgoingSQL = `INSERT INTO outgoings (product_id, quantity, outgoing_price, total_amount, recipient,
		outgoing_date, reason, order_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
)

var (
	listPurchasesFilteredSQL = listPurchasesSQL + fmt.Sprintf(ledgerFilterSQL, "l.purchase_date") +
		` ORDER BY l.purchase_date DESC, l.id DESC`
	listOutgoingsFilteredSQL = listOutgoingsSQL + fmt.Sprintf(ledgerFilterSQL, "l.outgoing_date") +
		` ORDER BY l.outgoing_date DESC, l.id DESC`
)

var _ inventory.Repository = (*LedgerRepository)(nil)

// LedgerRepository implements inventory.Repository backed by PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// ListPurchases returns purchases matching the filter, newest first.
func (r *LedgerRepository) ListPurchases(ctx context.Context, f inventory.Filter) ([]inventory.Purchase, error) {
	rows, err := r.pool.Query(ctx, listPurchasesFilteredSQL, f.ProductID, f.From, f.To)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Purchase, error) {
		var p inventory.Purchase
		err := row.Scan(&p.ID, &p.ProductID, &p.ProductName, &p.Quantity, &p.PurchasePrice, &p.TotalAmount,
			&p.Supplier, &p.PurchaseDate, &p.Notes)
		return p, err
	})
}

// ListOutgoings returns outgoing movements matching the filter, newest first.
func (r *LedgerRepository) ListOutgoings(ctx context.Context, f inventory.Filter) ([]inventory.Outgoing, error) {
	rows, err := r.pool.Query(ctx, listOutgoingsFilteredSQL, f.ProductID, f.From, f.To)
	if err != nil {
		return nil, fmt.Errorf("listing outgoings: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Outgoing, error) {
		var (
			o      inventory.Outgoing
			reason string
		)
		err := row.Scan(&o.ID, &o.ProductID, &o.ProductName, &o.Quantity, &o.OutgoingPrice, &o.TotalAmount,
			&o.Recipient, &o.OutgoingDate, &reason, &o.OrderID, &o.Notes)
		o.Reason = inventory.Reason(reason)
		return o, err
	})
}

// WithinTx runs fn in a single database transaction.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx pgx.Tx
}

var _ inventory.Tx = (*ledgerTx)(nil)

func (t *ledgerTx) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	return getProduct(ctx, t.tx, lockProductByIDSQL, id)
}

func (t *ledgerTx) AdjustStock(ctx context.Context, productID int64, delta int, at time.Time) error {
	ok, err := adjustStock(ctx, t.tx, productID, delta, at)
	if err != nil {
		return err
	}
	if !ok {
		return &inventory.InsufficientStockError{ProductID: productID, Requested: -delta}
	}
	return nil
}

func (t *ledgerTx) InsertPurchase(ctx context.Context, p *inventory.Purchase) error {
	err := t.tx.QueryRow(ctx, insertPurchaseSQL,
		p.ProductID, p.Quantity, p.PurchasePrice, p.TotalAmount, p.Supplier, p.PurchaseDate, p.Notes,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("inserting purchase of product %d: %w", p.ProductID, err)
	}
	return nil
}

func (t *ledgerTx) InsertOutgoing(ctx context.Context, o *inventory.Outgoing) error {
	err := t.tx.QueryRow(ctx, insertOutgoingSQL,
		o.ProductID, o.Quantity, o.OutgoingPrice, o.TotalAmount, o.Recipient, o.OutgoingDate,
		string(o.Reason), o.OrderID, o.Notes,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("inserting outgoing of product %d: %w", o.ProductID, err)
	}
	return nil
}
