package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockroom/internal/domain/product"
)

const (
	listSKUsSQL = `SELECT sku FROM products`

	existingSKUsSQL = `SELECT sku FROM products WHERE sku = ANY($1)`

	addStockBySKUSQL = `UPDATE products
		SET quantity_in_stock = quantity_in_stock + $2, last_updated = $3
		WHERE sku = $1`

	upsertProductSQL = `INSERT INTO products (name, description, sku, quantity_in_stock, cost_price, selling_price,
		category, supplier, minimum_stock_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			quantity_in_stock = EXCLUDED.quantity_in_stock,
			cost_price = EXCLUDED.cost_price,
			selling_price = EXCLUDED.selling_price,
			category = EXCLUDED.category,
			supplier = EXCLUDED.supplier,
			minimum_stock_level = EXCLUDED.minimum_stock_level,
			last_updated = EXCLUDED.created_at
		RETURNING id`
)

var copyProductColumns = []string{
	"name", "description", "sku", "quantity_in_stock", "cost_price", "selling_price",
	"category", "supplier", "minimum_stock_level", "created_at",
}

// CatalogRepository provides bulk catalog writes used by the operator CLI.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// SKUs returns every SKU in the catalog.
func (r *CatalogRepository) SKUs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listSKUsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing skus: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ExistingSKUs returns the subset of skus present in the catalog.
func (r *CatalogRepository) ExistingSKUs(ctx context.Context, skus []string) ([]string, error) {
	rows, err := r.pool.Query(ctx, existingSKUsSQL, skus)
	if err != nil {
		return nil, fmt.Errorf("checking skus: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CopyProducts bulk-inserts new products with COPY.
func (r *CatalogRepository) CopyProducts(ctx context.Context, ps []product.Product) (int64, error) {
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"products"}, copyProductColumns,
		pgx.CopyFromSlice(len(ps), func(i int) ([]any, error) {
			p := ps[i]
			return []any{
				p.Name, p.Description, p.SKU, p.QuantityInStock, p.CostPrice, p.SellingPrice,
				p.Category, p.Supplier, p.MinimumStockLevel, p.CreatedAt,
			}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("copying products: %w", err)
	}
	return n, nil
}

// AddStock increases stock of existing products keyed by SKU in one
// transaction.
func (r *CatalogRepository) AddStock(ctx context.Context, bySKU map[string]int, at time.Time) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for sku, qty := range bySKU {
			batch.Queue(addStockBySKUSQL, sku, qty, at)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("adding stock: %w", err)
		}
		return nil
	})
}

// Upsert inserts a product or overwrites the one with the same SKU.
func (r *CatalogRepository) Upsert(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, upsertProductSQL,
		p.Name, p.Description, p.SKU, p.QuantityInStock, p.CostPrice, p.SellingPrice,
		p.Category, p.Supplier, p.MinimumStockLevel, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.SKU, err)
	}
	return nil
}
