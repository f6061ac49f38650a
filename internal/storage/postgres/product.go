package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, description, price, category, image, stock
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, description, price, category, image, stock
		FROM products WHERE id = ANY($1) ORDER BY id`

	getVariantsByProductSQL = `SELECT product_id, sku, size, color, stock, price_override
		FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, size, color`
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

// GetByID returns a single product with its variants.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	if err := r.attachVariants(ctx, []string{id}, map[string]*product.Product{id: &p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs, variants included.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	if err := r.attachVariants(ctx, ids, byID); err != nil {
		return nil, err
	}
	return products, nil
}

// attachVariants loads variants for the given product ids and appends them
// to the products in byID.
func (r *ProductRepository) attachVariants(ctx context.Context, ids []string, byID map[string]*product.Product) error {
	rows, err := r.pool.Query(ctx, getVariantsByProductSQL, ids)
	if err != nil {
		return fmt.Errorf("getting variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			v         product.Variant
			override  *decimal.Decimal
		)
		if err := rows.Scan(&productID, &v.SKU, &v.Size, &v.Color, &v.Stock, &override); err != nil {
			return fmt.Errorf("scanning variant: %w", err)
		}
		v.PriceOverride = override
		if p, ok := byID[productID]; ok {
			p.Variants = append(p.Variants, v)
		}
	}
	return rows.Err()
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Category, &p.Image, &p.Stock)
	p.Price = price
	return p, err
}
