// Package pricing computes cart and order totals. All functions are pure.
package pricing

import (
	"github.com/shopspring/decimal"
)

var zero = decimal.Zero

// LineItem is a priced line for totals computation.
type LineItem struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the derived pricing breakdown of a cart or order.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Calculator holds the pricing policy constants.
type Calculator struct {
	// TaxRate is the flat tax rate applied to the subtotal.
	TaxRate decimal.Decimal
	// FreeShippingAbove is the subtotal at or above which shipping is free.
	FreeShippingAbove decimal.Decimal
	// FlatShippingFee is charged below the free-shipping threshold.
	FlatShippingFee decimal.Decimal
}

// DefaultCalculator returns a Calculator with the standard storefront
// policy: 18% tax, free shipping from 999, flat fee 99 below that.
func DefaultCalculator() Calculator {
	return Calculator{
		TaxRate:           decimal.RequireFromString("0.18"),
		FreeShippingAbove: decimal.NewFromInt(999),
		FlatShippingFee:   decimal.NewFromInt(99),
	}
}

// Compute derives the full totals breakdown from the given line items and an
// already-computed discount amount.
//
//	subtotal = Σ unitPrice × quantity
//	tax      = round(subtotal × TaxRate, 2)
//	shipping = 0 if subtotal ≥ FreeShippingAbove, else FlatShippingFee
//	total    = subtotal + tax + shipping − discount, clamped at 0
func (c Calculator) Compute(items []LineItem, discount decimal.Decimal) Totals {
	subtotal := zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	tax := subtotal.Mul(c.TaxRate).Round(2)

	shipping := c.FlatShippingFee
	if subtotal.GreaterThanOrEqual(c.FreeShippingAbove) {
		shipping = zero
	}

	total := subtotal.Add(tax).Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = zero
	}

	return Totals{
		Subtotal: subtotal,
		Discount: discount.Round(2),
		Shipping: shipping,
		Tax:      tax,
		Total:    total.Round(2),
	}
}
