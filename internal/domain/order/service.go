package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/threadline/storefront/internal/domain/cart"
	"github.com/threadline/storefront/internal/domain/inventory"
	"github.com/threadline/storefront/internal/domain/product"
)

// Service coordinates checkout and drives the order lifecycle.
type Service struct {
	orders   Repository
	carts    cart.Repository
	products product.Repository
	ledger   inventory.Ledger
	now      func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	carts cart.Repository,
	products product.Repository,
	ledger inventory.Ledger,
) *Service {
	return &Service{
		orders:   orders,
		carts:    carts,
		products: products,
		ledger:   ledger,
		now:      time.Now,
	}
}

// CheckoutRequest holds the input for turning a cart into an order.
type CheckoutRequest struct {
	UserID          string
	ShippingAddress Address
	// BillingAddress defaults to ShippingAddress when nil.
	BillingAddress *Address
	PaymentMethod  string
	Notes          string
}

// Checkout turns the user's cart into an immutable order.
//
// Steps: validate the cart is non-empty, re-validate every line against the
// current catalog, reserve stock for every line, create the order, clear the
// cart. Reservation happens before order creation; if any reservation fails,
// reservations already taken are restored and no order exists. If order
// creation fails after reservation, every reservation is restored. A failed
// checkout therefore never leaves partial inventory mutation behind.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	c, err := s.carts.GetByUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items, keys, err := s.snapshotItems(ctx, c)
	if err != nil {
		return nil, err
	}

	// Reserve every line. On failure, compensate the reservations already
	// taken so a failed checkout mutates nothing.
	reserved := make([]int, 0, len(items))
	for i, it := range items {
		if err := s.ledger.Reserve(ctx, keys[i], it.Quantity); err != nil {
			s.restore(ctx, items, keys, reserved)
			var ise *inventory.InsufficientStockError
			if errors.As(err, &ise) {
				return nil, &OutOfStockError{
					ProductID:   it.ProductID,
					ProductName: it.Name,
					Requested:   ise.Requested,
					Available:   ise.Available,
				}
			}
			return nil, errors.Wrapf(err, "reserve %s", keys[i])
		}
		reserved = append(reserved, i)
	}

	now := s.now()
	number, err := s.orders.NextNumber(ctx, now)
	if err != nil {
		s.restore(ctx, items, keys, reserved)
		return nil, errors.Wrap(err, "next order number")
	}

	paymentStatus := PaymentProcessing
	if req.PaymentMethod == PaymentMethodCOD {
		paymentStatus = PaymentPending
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	o := &Order{
		ID:              uuid.New().String(),
		Number:          number,
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		Payment: Payment{
			Method: req.PaymentMethod,
			Status: paymentStatus,
		},
		Pricing: Pricing{
			Totals:     c.Totals,
			CouponCode: c.CouponCode,
		},
		Status: StatusPending,
		History: []StatusEntry{
			{Status: StatusPending, Timestamp: now, Note: "Order placed"},
		},
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		s.restore(ctx, items, keys, reserved)
		return nil, errors.Wrap(err, "create order")
	}

	// The order is committed; a cart-clear failure must not fail the
	// checkout. It is logged and the cart stays clearable by the user.
	c.Empty()
	c.UpdatedAt = now
	if err := s.carts.Save(ctx, c); err != nil {
		zctx.From(ctx).Error("clear cart after checkout",
			zap.String("order", o.Number), zap.Error(err))
	}

	return o, nil
}

// snapshotItems re-validates every cart line against the current catalog and
// builds frozen order items. Name, image, and variant data are copied from
// the catalog at this instant; the unit price is taken from the cart's
// snapshot, not re-priced.
func (s *Service) snapshotItems(ctx context.Context, c *cart.Cart) ([]Item, []inventory.VariantKey, error) {
	ids := make([]string, 0, len(c.Items))
	seen := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	items := make([]Item, len(c.Items))
	keys := make([]inventory.VariantKey, len(c.Items))
	for i, it := range c.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, nil, product.ErrNotFound
		}
		v, err := p.FindVariant(it.Size, it.Color)
		if err != nil {
			return nil, nil, err
		}
		if v.Stock < it.Quantity {
			return nil, nil, &OutOfStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   it.Quantity,
				Available:   v.Stock,
			}
		}

		qty := decimal.NewFromInt(int64(it.Quantity))
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			SKU:       v.SKU,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.UnitPrice.Mul(qty),
		}
		keys[i] = inventory.VariantKey{ProductID: it.ProductID, Size: it.Size, Color: it.Color}
	}
	return items, keys, nil
}

// restore compensates the reservations at the given item indices. Restore is
// an unconditional increment, so re-running it on a retry is safe; failures
// are logged for the reconciliation runbook rather than propagated.
func (s *Service) restore(ctx context.Context, items []Item, keys []inventory.VariantKey, indices []int) {
	for _, i := range indices {
		if err := s.ledger.Restore(ctx, keys[i], items[i].Quantity); err != nil {
			zctx.From(ctx).Error("restore reservation",
				zap.String("variant", keys[i].String()),
				zap.Int("quantity", items[i].Quantity),
				zap.Error(err))
		}
	}
}

// Get returns an order by storage id or by order number.
func (s *Service) Get(ctx context.Context, idOrNumber string) (*Order, error) {
	if strings.HasPrefix(idOrNumber, numberPrefix) {
		return s.orders.GetByNumber(ctx, idOrNumber)
	}
	return s.orders.GetByID(ctx, idOrNumber)
}

// GetForUser returns the order only when it belongs to the given user.
func (s *Service) GetForUser(ctx context.Context, userID, idOrNumber string) (*Order, error) {
	o, err := s.Get(ctx, idOrNumber)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first, with the total count.
func (s *Service) ListForUser(ctx context.Context, userID string, p Page) ([]Order, int, error) {
	return s.orders.ListByUser(ctx, userID, p)
}

// List returns orders matching the filter, newest first, with the total
// count. Admin surface only.
func (s *Service) List(ctx context.Context, f ListFilter, p Page) ([]Order, int, error) {
	return s.orders.List(ctx, f, p)
}

// Cancel performs the guarded cancel transition and then restores stock for
// every order item. The two steps are not one transaction: if the process
// dies in between, re-driving the restore from the order's own item list is
// the documented recovery.
func (s *Service) Cancel(ctx context.Context, userID, idOrNumber, reason string) (*Order, error) {
	o, err := s.GetForUser(ctx, userID, idOrNumber)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, o, reason, userID)
}

func (s *Service) cancel(ctx context.Context, o *Order, reason, actor string) (*Order, error) {
	from := o.Status
	if !from.CanCancel() {
		return nil, ErrNotCancellable
	}

	now := s.now()
	o.Status = StatusCancelled
	o.Cancellation = &Cancellation{
		Reason:      reason,
		CancelledAt: now,
		CancelledBy: actor,
	}
	o.UpdatedAt = now
	entry := StatusEntry{Status: StatusCancelled, Timestamp: now, Note: reason}
	// The flip is conditional on the status read above. A concurrent writer
	// (say an admin shipping the order) wins the race and the cancel must
	// not restore any stock.
	if err := s.orders.Transition(ctx, o, &entry, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrNotCancellable
		}
		return nil, errors.Wrap(err, "cancel order")
	}
	o.History = append(o.History, entry)

	for _, it := range o.Items {
		key := inventory.VariantKey{ProductID: it.ProductID, Size: it.Size, Color: it.Color}
		if err := s.ledger.Restore(ctx, key, it.Quantity); err != nil {
			zctx.From(ctx).Error("restore stock on cancel",
				zap.String("order", o.Number),
				zap.String("variant", key.String()),
				zap.Error(err))
		}
	}

	return o, nil
}

// StatusUpdate is the admin input for driving the state machine.
type StatusUpdate struct {
	Status         Status
	Note           string
	TrackingNumber string
	Carrier        string
	Actor          string
}

// UpdateStatus applies one state-machine transition and appends exactly one
// history entry. Entering shipped stamps ShippedAt (plus tracking metadata
// when provided); entering delivered stamps DeliveredAt and marks COD orders
// paid. Moving to cancelled goes through the full cancel path, including the
// compensating stock restore.
func (s *Service) UpdateStatus(ctx context.Context, idOrNumber string, upd StatusUpdate) (*Order, error) {
	o, err := s.Get(ctx, idOrNumber)
	if err != nil {
		return nil, err
	}

	if upd.Status == StatusCancelled {
		return s.cancel(ctx, o, upd.Note, upd.Actor)
	}

	from := o.Status
	if !from.CanTransition(upd.Status) {
		return nil, &InvalidTransitionError{From: from, To: upd.Status}
	}

	now := s.now()
	o.Status = upd.Status
	o.UpdatedAt = now

	switch upd.Status {
	case StatusShipped:
		o.Shipping.ShippedAt = &now
		if upd.TrackingNumber != "" {
			o.Shipping.TrackingNumber = upd.TrackingNumber
		}
		if upd.Carrier != "" {
			o.Shipping.Carrier = upd.Carrier
		}
	case StatusDelivered:
		o.Shipping.DeliveredAt = &now
		if o.Payment.Method == PaymentMethodCOD && o.Payment.Status == PaymentPending {
			o.Payment.Status = PaymentPaid
			o.Payment.PaidAt = &now
		}
	}

	entry := StatusEntry{Status: upd.Status, Timestamp: now, Note: upd.Note}
	if err := s.orders.Transition(ctx, o, &entry, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrStatusConflict
		}
		return nil, errors.Wrap(err, "update order status")
	}
	o.History = append(o.History, entry)

	return o, nil
}

// UpdatePayment records a new payment status. Transitioning to paid stamps
// PaidAt. Admin surface only; no gateway is involved.
func (s *Service) UpdatePayment(ctx context.Context, idOrNumber string, status PaymentStatus, transactionID string) (*Order, error) {
	o, err := s.Get(ctx, idOrNumber)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o.Payment.Status = status
	if transactionID != "" {
		o.Payment.TransactionID = transactionID
	}
	if status == PaymentPaid && o.Payment.PaidAt == nil {
		o.Payment.PaidAt = &now
	}
	o.UpdatedAt = now

	if err := s.orders.Update(ctx, o, nil); err != nil {
		return nil, errors.Wrap(err, "update order payment")
	}
	return o, nil
}
