package handler

import (
	"time"

	"github.com/threadline/storefront/internal/domain/cart"
	"github.com/threadline/storefront/internal/domain/order"
	"github.com/threadline/storefront/internal/domain/pricing"
)

// View types decouple the JSON wire shape from the domain model. Monetary
// values are serialized as plain numbers, matching the storefront clients.

type totalsView struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

func toTotalsView(t pricing.Totals) totalsView {
	return totalsView{
		Subtotal: t.Subtotal.InexactFloat64(),
		Discount: t.Discount.InexactFloat64(),
		Shipping: t.Shipping.InexactFloat64(),
		Tax:      t.Tax.InexactFloat64(),
		Total:    t.Total.InexactFloat64(),
	}
}

type cartItemView struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	SKU       string    `json:"sku"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unitPrice"`
	AddedAt   time.Time `json:"addedAt"`
}

type cartView struct {
	ID         string         `json:"id"`
	Items      []cartItemView `json:"items"`
	CouponCode string         `json:"couponCode,omitempty"`
	Totals     totalsView     `json:"totals"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func toCartView(c *cart.Cart) cartView {
	items := make([]cartItemView, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemView{
			ID:        it.ID,
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			AddedAt:   it.AddedAt,
		}
	}
	return cartView{
		ID:         c.ID,
		Items:      items,
		CouponCode: c.CouponCode,
		Totals:     toTotalsView(c.Totals),
		UpdatedAt:  c.UpdatedAt,
	}
}

type orderItemView struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	SKU       string  `json:"sku"`
	Size      string  `json:"size"`
	Color     string  `json:"color"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

type addressView struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func toAddressView(a order.Address) addressView {
	return addressView{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type paymentView struct {
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transactionId,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

type pricingView struct {
	totalsView
	CouponCode string `json:"couponCode,omitempty"`
}

type statusEntryView struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

type shippingView struct {
	Carrier           string     `json:"carrier,omitempty"`
	TrackingNumber    string     `json:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	ShippedAt         *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
}

type cancellationView struct {
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
	CancelledBy string    `json:"cancelledBy"`
}

type orderView struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"orderNumber"`
	Items           []orderItemView   `json:"items"`
	ShippingAddress addressView       `json:"shippingAddress"`
	BillingAddress  addressView       `json:"billingAddress"`
	Payment         paymentView       `json:"payment"`
	Pricing         pricingView       `json:"pricing"`
	Status          string            `json:"status"`
	StatusHistory   []statusEntryView `json:"statusHistory,omitempty"`
	Shipping        shippingView      `json:"shipping"`
	Cancellation    *cancellationView `json:"cancellation,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func toOrderView(o *order.Order) orderView {
	items := make([]orderItemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemView{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			SKU:       it.SKU,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			LineTotal: it.LineTotal.InexactFloat64(),
		}
	}

	history := make([]statusEntryView, len(o.History))
	for i, e := range o.History {
		history[i] = statusEntryView{
			Status:    string(e.Status),
			Timestamp: e.Timestamp,
			Note:      e.Note,
		}
	}

	v := orderView{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Items:           items,
		ShippingAddress: toAddressView(o.ShippingAddress),
		BillingAddress:  toAddressView(o.BillingAddress),
		Payment: paymentView{
			Method:        o.Payment.Method,
			Status:        string(o.Payment.Status),
			TransactionID: o.Payment.TransactionID,
			PaidAt:        o.Payment.PaidAt,
		},
		Pricing: pricingView{
			totalsView: toTotalsView(o.Pricing.Totals),
			CouponCode: o.Pricing.CouponCode,
		},
		Status:        string(o.Status),
		StatusHistory: history,
		Shipping: shippingView{
			Carrier:           o.Shipping.Carrier,
			TrackingNumber:    o.Shipping.TrackingNumber,
			EstimatedDelivery: o.Shipping.EstimatedDelivery,
			ShippedAt:         o.Shipping.ShippedAt,
			DeliveredAt:       o.Shipping.DeliveredAt,
		},
		Notes:     o.Notes,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}

	if o.Cancellation != nil {
		v.Cancellation = &cancellationView{
			Reason:      o.Cancellation.Reason,
			CancelledAt: o.Cancellation.CancelledAt,
			CancelledBy: o.Cancellation.CancelledBy,
		}
	}

	return v
}

func toOrderViews(orders []order.Order) []orderView {
	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toOrderView(&orders[i])
	}
	return views
}

type addressInput struct {
	FullName   string `json:"fullName" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone"`
}

func (a addressInput) toDomain() order.Address {
	return order.Address{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}
