package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when no cart exists for a user.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a cart item id does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for non-positive add quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Cart is the mutable pre-order basket, one per user. Totals are derived
// and recomputed by the service after every mutation.
type Cart struct {
	ID         string
	UserID     string
	Items      []Item
	CouponCode string
	Totals     pricing.Totals
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item is a single cart line. UnitPrice is a snapshot taken at add time and
// is not re-priced by later catalog changes. At most one item exists per
// distinct (productID, size, color); duplicate adds merge by quantity.
type Item struct {
	ID        string
	ProductID string
	SKU       string
	Size      string
	Color     string
	Quantity  int
	UnitPrice decimal.Decimal
	AddedAt   time.Time
}

// Empty drops all items, the coupon, and the derived totals. The cart
// document itself survives; carts are never hard-deleted.
func (c *Cart) Empty() {
	c.Items = nil
	c.CouponCode = ""
	c.Totals = pricing.Totals{
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Shipping: decimal.Zero,
		Tax:      decimal.Zero,
		Total:    decimal.Zero,
	}
}

// findItem returns the index of the item with the given id, or -1.
func (c *Cart) findItem(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// findVariant returns the index of the item matching the variant tuple, or -1.
func (c *Cart) findVariant(productID, size, color string) int {
	for i := range c.Items {
		it := &c.Items[i]
		if it.ProductID == productID && it.Size == size && it.Color == color {
			return i
		}
	}
	return -1
}

// lineItems converts cart items into pricing line items.
func (c *Cart) lineItems() []pricing.LineItem {
	items := make([]pricing.LineItem, len(c.Items))
	for i, it := range c.Items {
		items[i] = pricing.LineItem{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	return items
}

// Repository defines persistence for carts. Save upserts the whole cart
// document, including items, coupon code, and derived totals.
type Repository interface {
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
}
