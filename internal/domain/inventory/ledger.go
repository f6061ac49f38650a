// Package inventory owns per-variant stock counts and the only safe
// mutation primitives over them.
package inventory

import (
	"context"
	"fmt"
)

// VariantKey identifies a single purchasable variant.
type VariantKey struct {
	ProductID string
	Size      string
	Color     string
}

func (k VariantKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ProductID, k.Size, k.Color)
}

// InsufficientStockError indicates a reservation asked for more units than
// the variant currently holds. The reservation did not mutate any state.
type InsufficientStockError struct {
	Key       VariantKey
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.Key, e.Requested, e.Available)
}

// Ledger is the authority over stock counts.
//
// Reserve must be a single conditional read-modify-write evaluated by the
// storage layer so that two concurrent checkouts for the last unit of a
// variant cannot both succeed. Restore is an unconditional increment and is
// safe to re-run as a compensation step. CheckAvailable is advisory only:
// stock can change between the check and a later Reserve.
type Ledger interface {
	Reserve(ctx context.Context, key VariantKey, quantity int) error
	Restore(ctx context.Context, key VariantKey, quantity int) error
	CheckAvailable(ctx context.Context, key VariantKey, quantity int) (bool, error)
}
