package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a product exists but has no
	// variant matching the requested size and color.
	ErrVariantNotFound = errors.New("product variant not found")
)

// Product represents a catalog item available for purchase. Stock is the
// aggregate across all variants and is maintained alongside variant stock
// by the inventory ledger.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Image       string
	Stock       int
	Variants    []Variant
}

// Variant is a purchasable (size, color) configuration of a product with its
// own stock count and optional price override.
type Variant struct {
	SKU           string
	Size          string
	Color         string
	Stock         int
	PriceOverride *decimal.Decimal
}

// UnitPrice returns the effective price of the variant: the override when
// present, the product's base price otherwise.
func (v Variant) UnitPrice(base decimal.Decimal) decimal.Decimal {
	if v.PriceOverride != nil {
		return *v.PriceOverride
	}
	return base
}

// FindVariant returns the variant matching the given size and color, or
// ErrVariantNotFound.
func (p *Product) FindVariant(size, color string) (*Variant, error) {
	for i := range p.Variants {
		if p.Variants[i].Size == size && p.Variants[i].Color == color {
			return &p.Variants[i], nil
		}
	}
	return nil, ErrVariantNotFound
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
