package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/inventory"
	"github.com/threadline/storefront/internal/domain/pricing"
	"github.com/threadline/storefront/internal/domain/product"
)

// Service implements cart mutations. Every mutation recomputes the derived
// totals through the pricing calculator and re-resolves any stored coupon
// against the current subtotal.
type Service struct {
	carts    Repository
	products product.Repository
	ledger   inventory.Ledger
	coupons  coupon.Resolver
	calc     pricing.Calculator
	now      func() time.Time
}

// NewService creates a cart Service with the required dependencies.
func NewService(
	carts Repository,
	products product.Repository,
	ledger inventory.Ledger,
	coupons coupon.Resolver,
	calc pricing.Calculator,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		ledger:   ledger,
		coupons:  coupons,
		calc:     calc,
		now:      time.Now,
	}
}

// Get returns the user's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get cart")
	}

	now := s.now()
	c = &Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// AddItem adds a (product, size, color) line to the cart, merging with an
// existing line for the same variant by summing quantities. The unit price
// is snapshotted from the catalog at this instant. Availability is checked
// against the ledger, but only as an advisory gate; the authoritative check
// happens at checkout.
func (s *Service) AddItem(ctx context.Context, userID, productID, size, color string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	v, err := p.FindVariant(size, color)
	if err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := inventory.VariantKey{ProductID: productID, Size: size, Color: color}
	wanted := quantity
	idx := c.findVariant(productID, size, color)
	if idx >= 0 {
		wanted += c.Items[idx].Quantity
	}

	ok, err := s.ledger.CheckAvailable(ctx, key, wanted)
	if err != nil {
		return nil, errors.Wrap(err, "check availability")
	}
	if !ok {
		return nil, &inventory.InsufficientStockError{Key: key, Requested: wanted, Available: v.Stock}
	}

	if idx >= 0 {
		c.Items[idx].Quantity = wanted
	} else {
		c.Items = append(c.Items, Item{
			ID:        uuid.New().String(),
			ProductID: productID,
			SKU:       v.SKU,
			Size:      size,
			Color:     color,
			Quantity:  quantity,
			UnitPrice: v.UnitPrice(p.Price),
			AddedAt:   s.now(),
		})
	}

	return s.saveRecomputed(ctx, c)
}

// UpdateItemQuantity sets the quantity of an existing cart line. A quantity
// of zero or less removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := c.findItem(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	if quantity <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return s.saveRecomputed(ctx, c)
	}

	it := c.Items[idx]
	p, err := s.products.GetByID(ctx, it.ProductID)
	if err != nil {
		return nil, err
	}
	v, err := p.FindVariant(it.Size, it.Color)
	if err != nil {
		return nil, err
	}

	key := inventory.VariantKey{ProductID: it.ProductID, Size: it.Size, Color: it.Color}
	ok, err := s.ledger.CheckAvailable(ctx, key, quantity)
	if err != nil {
		return nil, errors.Wrap(err, "check availability")
	}
	if !ok {
		return nil, &inventory.InsufficientStockError{Key: key, Requested: quantity, Available: v.Stock}
	}

	c.Items[idx].Quantity = quantity
	return s.saveRecomputed(ctx, c)
}

// RemoveItem deletes a cart line by its id.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := c.findItem(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)

	return s.saveRecomputed(ctx, c)
}

// Clear empties the cart. The cart document itself survives; only its items,
// coupon, and totals are reset.
func (s *Service) Clear(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.Items = nil
	c.CouponCode = ""
	return s.saveRecomputed(ctx, c)
}

// ApplyCoupon resolves the code and stores it on the cart. Application is
// idempotent: the discount is always recomputed from the current subtotal,
// never applied additively.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.coupons.Resolve(ctx, code); err != nil {
		return nil, err
	}

	c.CouponCode = code
	return s.saveRecomputed(ctx, c)
}

// RemoveCoupon drops the coupon from the cart and recomputes totals.
func (s *Service) RemoveCoupon(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.CouponCode = ""
	return s.saveRecomputed(ctx, c)
}

// saveRecomputed recomputes the cart's derived totals and persists it.
// A stored coupon that no longer resolves (expired or deactivated since it
// was applied) is dropped rather than failing the mutation.
func (s *Service) saveRecomputed(ctx context.Context, c *Cart) (*Cart, error) {
	if len(c.Items) == 0 {
		c.Empty()
	} else {
		discount := decimal.Zero
		if c.CouponCode != "" {
			rule, err := s.coupons.Resolve(ctx, c.CouponCode)
			switch {
			case err == nil:
				subtotal := s.calc.Compute(c.lineItems(), decimal.Zero).Subtotal
				discount = coupon.Discount(rule, subtotal)
			case errors.Is(err, coupon.ErrInvalidCoupon) || errors.Is(err, coupon.ErrCouponExpired):
				c.CouponCode = ""
			default:
				return nil, errors.Wrap(err, "resolve coupon")
			}
		}
		c.Totals = s.calc.Compute(c.lineItems(), discount)
	}

	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}
