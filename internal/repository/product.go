package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockroom/internal/domain/product"
)

const foreignKeyViolation = "23503"

const productColumns = `id, name, description, sku, quantity_in_stock, cost_price, selling_price,
	category, supplier, minimum_stock_level, created_at, last_updated`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ($1::text = '' OR name ILIKE '%' || $1::text || '%' OR sku ILIKE '%' || $1::text || '%'
			OR description ILIKE '%' || $1::text || '%')
		AND ($2::text = '' OR category = $2::text)
		ORDER BY name, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	lockProductByIDSQL = getProductByIDSQL + ` FOR UPDATE`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	lockProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	lowStockProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE minimum_stock_level IS NOT NULL AND quantity_in_stock <= minimum_stock_level
		ORDER BY quantity_in_stock, name`

	listCategoriesSQL = `SELECT DISTINCT category FROM products ORDER BY category`

	insertProductSQL = `INSERT INTO products (name, description, sku, quantity_in_stock, cost_price, selling_price,
		category, supplier, minimum_stock_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, sku = $4, quantity_in_stock = $5,
		cost_price = $6, selling_price = $7, category = $8, supplier = $9, minimum_stock_level = $10,
		last_updated = $11
		WHERE id = $1
		RETURNING created_at`

	productReferencesSQL = `SELECT
		(SELECT count(*) FROM order_items WHERE product_id = $1),
		(SELECT count(*) FROM purchases WHERE product_id = $1),
		(SELECT count(*) FROM outgoings WHERE product_id = $1)`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	// Guarded so concurrent writers can never drive stock below zero.
	adjustStockSQL = `UPDATE products
		SET quantity_in_stock = quantity_in_stock + $2, last_updated = $3
		WHERE id = $1 AND quantity_in_stock + $2 >= 0`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns products matching the filter ordered by name.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, f.Search, f.Category)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	return getProduct(ctx, r.pool, getProductByIDSQL, id)
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// LowStock returns products at or below their minimum stock level.
func (r *ProductRepository) LowStock(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, lowStockProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing low stock products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Categories returns the distinct categories in use.
func (r *ProductRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Create inserts a product and assigns its ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL,
		p.Name, p.Description, p.SKU, p.QuantityInStock, p.CostPrice, p.SellingPrice,
		p.Category, p.Supplier, p.MinimumStockLevel, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrDuplicateSKU
		}
		return fmt.Errorf("inserting product %q: %w", p.SKU, err)
	}
	return nil
}

// Update overwrites every mutable column of a product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.SKU, p.QuantityInStock, p.CostPrice, p.SellingPrice,
		p.Category, p.Supplier, p.MinimumStockLevel, p.LastUpdated,
	).Scan(&p.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return &product.NotFoundError{ProductID: p.ID}
		case isUniqueViolation(err):
			return product.ErrDuplicateSKU
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	return nil
}

// References counts order items and ledger entries pointing at a product.
func (r *ProductRepository) References(ctx context.Context, id int64) (product.References, error) {
	var refs product.References
	err := r.pool.QueryRow(ctx, productReferencesSQL, id).Scan(&refs.OrderItems, &refs.Purchases, &refs.Outgoings)
	if err != nil {
		return refs, fmt.Errorf("counting references of product %d: %w", id, err)
	}
	return refs, nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return &product.InUseError{ProductID: id}
		}
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &product.NotFoundError{ProductID: id}
	}
	return nil
}

func getProduct(ctx context.Context, q querier, sql string, id int64) (*product.Product, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &product.NotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// productsByID runs a by-ids product query and indexes the result.
func productsByID(ctx context.Context, q querier, sql string, ids []int64) (map[int64]product.Product, error) {
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	out := make(map[int64]product.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// adjustStock applies delta to a product's stock. It reports false when the
// guard rejected the change because stock would go negative.
func adjustStock(ctx context.Context, q querier, id int64, delta int, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, adjustStockSQL, id, delta, at)
	if err != nil {
		return false, fmt.Errorf("adjusting stock of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking product %d: %w", id, err)
	}
	if !exists {
		return false, &product.NotFoundError{ProductID: id}
	}
	return false, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.SKU, &p.QuantityInStock, &p.CostPrice, &p.SellingPrice,
		&p.Category, &p.Supplier, &p.MinimumStockLevel, &p.CreatedAt, &p.LastUpdated,
	)
	return p, err
}
