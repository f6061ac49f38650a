package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadline/storefront/internal/domain/inventory"
	"github.com/threadline/storefront/internal/domain/product"
)

const (
	reserveVariantSQL = `UPDATE product_variants SET stock = stock - $4
		WHERE product_id = $1 AND size = $2 AND color = $3 AND stock >= $4`

	restoreVariantSQL = `UPDATE product_variants SET stock = stock + $4
		WHERE product_id = $1 AND size = $2 AND color = $3`

	adjustAggregateSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	getVariantStockSQL = `SELECT stock FROM product_variants
		WHERE product_id = $1 AND size = $2 AND color = $3`
)

var _ inventory.Ledger = (*InventoryLedger)(nil)

// InventoryLedger implements inventory.Ledger backed by PostgreSQL. The
// conditional decrement is evaluated by the database (stock >= quantity in
// the UPDATE predicate), so concurrent reservations for the last unit of a
// variant cannot both succeed.
type InventoryLedger struct {
	pool *pgxpool.Pool
}

// NewInventoryLedger returns an InventoryLedger that uses the given pool.
func NewInventoryLedger(pool *pgxpool.Pool) *InventoryLedger {
	return &InventoryLedger{pool: pool}
}

// Reserve atomically decrements the variant's stock and the product's
// aggregate stock by quantity, only when the variant currently holds at
// least quantity units. On shortfall it returns InsufficientStockError
// without mutating anything.
func (l *InventoryLedger) Reserve(ctx context.Context, key inventory.VariantKey, quantity int) error {
	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, reserveVariantSQL, key.ProductID, key.Size, key.Color, quantity)
		if err != nil {
			return fmt.Errorf("reserving variant %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			available, err := l.variantStock(ctx, tx, key)
			if err != nil {
				return err
			}
			return &inventory.InsufficientStockError{
				Key:       key,
				Requested: quantity,
				Available: available,
			}
		}

		if _, err := tx.Exec(ctx, adjustAggregateSQL, key.ProductID, -quantity); err != nil {
			return fmt.Errorf("adjusting aggregate stock for %q: %w", key.ProductID, err)
		}
		return nil
	})
}

// Restore unconditionally increments the variant's stock and the product's
// aggregate stock by quantity. Used for cancellation compensation.
func (l *InventoryLedger) Restore(ctx context.Context, key inventory.VariantKey, quantity int) error {
	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, restoreVariantSQL, key.ProductID, key.Size, key.Color, quantity)
		if err != nil {
			return fmt.Errorf("restoring variant %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return product.ErrVariantNotFound
		}

		if _, err := tx.Exec(ctx, adjustAggregateSQL, key.ProductID, quantity); err != nil {
			return fmt.Errorf("adjusting aggregate stock for %q: %w", key.ProductID, err)
		}
		return nil
	})
}

// CheckAvailable reports whether the variant currently holds at least
// quantity units. Advisory only: stock can change before a later Reserve.
func (l *InventoryLedger) CheckAvailable(ctx context.Context, key inventory.VariantKey, quantity int) (bool, error) {
	available, err := l.variantStock(ctx, l.pool, key)
	if err != nil {
		return false, err
	}
	return available >= quantity, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (l *InventoryLedger) variantStock(ctx context.Context, q querier, key inventory.VariantKey) (int, error) {
	var stock int
	err := q.QueryRow(ctx, getVariantStockSQL, key.ProductID, key.Size, key.Color).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, product.ErrVariantNotFound
		}
		return 0, fmt.Errorf("getting stock for variant %s: %w", key, err)
	}
	return stock, nil
}
