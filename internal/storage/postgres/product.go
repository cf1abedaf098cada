package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
)

const (
	getProductByIDSQL = `SELECT id, sku, name, price, sale_price, current_stock
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, sku, name, price, sale_price, current_stock
		FROM products WHERE id = ANY($1)`

	decrementStockSQL = `UPDATE products SET current_stock = current_stock - $2
		WHERE id = $1 AND current_stock >= $2`

	upsertProductSQL = `INSERT INTO products (id, sku, name, price, sale_price, current_stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name,
			price = EXCLUDED.price, sale_price = EXCLUDED.sale_price,
			current_stock = EXCLUDED.current_stock`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product or catalog.ErrProductNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Snapshot, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns the products matching any of ids. Unknown ids are absent
// from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Snapshot, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock subtracts qty from the stock when at least qty remains. The
// row lock taken by the update serializes concurrent checkouts of the same
// product.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return false, fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert inserts or replaces a product.
func (r *ProductRepository) Upsert(ctx context.Context, p catalog.Snapshot) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.ListPrice, p.SalePrice, p.Stock,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Snapshot, error) {
	var p catalog.Snapshot
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.ListPrice, &p.SalePrice, &p.Stock)
	return p, err
}
