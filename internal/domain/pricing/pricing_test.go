package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func item(price string, qty int) LineItem {
	return LineItem{UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func TestCompute_FreeShippingAtThreshold(t *testing.T) {
	calc := DefaultCalculator()

	// Two units of 500.00 land exactly on the free shipping threshold.
	totals := calc.Compute([]LineItem{item("500.00", 2)}, decimal.Zero)

	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("1000.00")), "subtotal: %s", totals.Subtotal)
	assert.True(t, totals.Tax.Equal(decimal.RequireFromString("180.00")), "tax: %s", totals.Tax)
	assert.True(t, totals.Shipping.IsZero(), "shipping: %s", totals.Shipping)
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("1180.00")), "total: %s", totals.Total)
}

func TestCompute_FlatShippingBelowThreshold(t *testing.T) {
	calc := DefaultCalculator()

	totals := calc.Compute([]LineItem{item("499.00", 2)}, decimal.Zero)

	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("998.00")))
	assert.True(t, totals.Shipping.Equal(decimal.NewFromInt(99)))
}

func TestCompute_ShippingIgnoresDiscount(t *testing.T) {
	calc := DefaultCalculator()

	// Discount drops the payable amount below the threshold, but free
	// shipping keys off the subtotal alone.
	totals := calc.Compute([]LineItem{item("1000.00", 1)}, decimal.NewFromInt(500))

	assert.True(t, totals.Shipping.IsZero())
	assert.True(t, totals.Discount.Equal(decimal.NewFromInt(500)))
}

func TestCompute_TaxRounding(t *testing.T) {
	calc := DefaultCalculator()

	// 333.33 * 0.18 = 59.9994, rounded to two decimal places.
	totals := calc.Compute([]LineItem{item("333.33", 1)}, decimal.Zero)

	assert.True(t, totals.Tax.Equal(decimal.RequireFromString("60.00")), "tax: %s", totals.Tax)
}

func TestCompute_TaxOnUndiscountedSubtotal(t *testing.T) {
	calc := DefaultCalculator()

	with := calc.Compute([]LineItem{item("1000.00", 1)}, decimal.NewFromInt(200))
	without := calc.Compute([]LineItem{item("1000.00", 1)}, decimal.Zero)

	assert.True(t, with.Tax.Equal(without.Tax), "tax must not depend on discount")
}

func TestCompute_TotalClampedAtZero(t *testing.T) {
	calc := DefaultCalculator()

	// Discount exceeding subtotal+tax+shipping must not produce a negative
	// total.
	totals := calc.Compute([]LineItem{item("100.00", 1)}, decimal.NewFromInt(500))

	assert.True(t, totals.Total.IsZero(), "total: %s", totals.Total)
}

func TestCompute_MultipleLines(t *testing.T) {
	calc := DefaultCalculator()

	totals := calc.Compute([]LineItem{
		item("499.00", 1),
		item("1299.00", 2),
	}, decimal.Zero)

	want := decimal.RequireFromString("3097.00")
	assert.True(t, totals.Subtotal.Equal(want), "subtotal: %s", totals.Subtotal)
	assert.True(t, totals.Shipping.IsZero())
	assert.True(t, totals.Total.Equal(want.Add(totals.Tax)))
}

func TestCompute_NoItems(t *testing.T) {
	calc := DefaultCalculator()

	totals := calc.Compute(nil, decimal.Zero)

	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.Tax.IsZero())
	// An empty computation is still below the threshold, so the flat fee
	// applies; callers zero totals for empty carts instead.
	assert.True(t, totals.Shipping.Equal(decimal.NewFromInt(99)))
}
