package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadline/storefront/internal/domain/cart"
)

const (
	getCartByUserSQL = `SELECT id, user_id, coupon_code, subtotal, discount, shipping, tax, total, created_at, updated_at
		FROM carts WHERE user_id = $1`

	getCartItemsSQL = `SELECT id, product_id, sku, size, color, quantity, unit_price, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`

	upsertCartSQL = `INSERT INTO carts (id, user_id, coupon_code, subtotal, discount, shipping, tax, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			coupon_code = EXCLUDED.coupon_code,
			subtotal = EXCLUDED.subtotal,
			discount = EXCLUDED.discount,
			shipping = EXCLUDED.shipping,
			tax = EXCLUDED.tax,
			total = EXCLUDED.total,
			updated_at = EXCLUDED.updated_at`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, sku, size, color, quantity, unit_price, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. The cart
// is treated as one document: Save rewrites the item set wholesale inside a
// transaction. Carts are single-writer per user, so this stays cheap.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByUser returns the user's cart with its items, or cart.ErrNotFound.
func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}

	itemRows, err := r.pool.Query(ctx, getCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("getting cart items for %q: %w", c.ID, err)
	}
	items, err := pgx.CollectRows(itemRows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("getting cart items for %q: %w", c.ID, err)
	}
	c.Items = items

	return &c, nil
}

// Save upserts the cart row and rewrites its items.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertCartSQL,
			c.ID, c.UserID, c.CouponCode,
			c.Totals.Subtotal, c.Totals.Discount, c.Totals.Shipping, c.Totals.Tax, c.Totals.Total,
			c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting cart %q: %w", c.ID, err)
		}

		if _, err := tx.Exec(ctx, deleteCartItemsSQL, c.ID); err != nil {
			return fmt.Errorf("clearing cart items for %q: %w", c.ID, err)
		}

		for _, it := range c.Items {
			_, err := tx.Exec(ctx, insertCartItemSQL,
				it.ID, c.ID, it.ProductID, it.SKU, it.Size, it.Color,
				it.Quantity, it.UnitPrice, it.AddedAt,
			)
			if err != nil {
				return fmt.Errorf("inserting cart item %q: %w", it.ID, err)
			}
		}
		return nil
	})
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var c cart.Cart
	err := row.Scan(
		&c.ID, &c.UserID, &c.CouponCode,
		&c.Totals.Subtotal, &c.Totals.Discount, &c.Totals.Shipping, &c.Totals.Tax, &c.Totals.Total,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(
		&it.ID, &it.ProductID, &it.SKU, &it.Size, &it.Color,
		&it.Quantity, &it.UnitPrice, &it.AddedAt,
	)
	return it, err
}
