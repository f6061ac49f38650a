package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
)

var hundred = decimal.NewFromInt(100)

// Rule defines a percent-off coupon and its eligibility window.
type Rule struct {
	Code        string
	PercentOff  decimal.Decimal
	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	Active      bool
}

// Resolver looks up the discount rule for a coupon code. Implementations
// return ErrInvalidCoupon for unknown or inactive codes and ErrCouponExpired
// for codes outside their validity window.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*Rule, error)
}

// Discount computes the discount amount the rule grants on the given
// subtotal: round(subtotal × percent / 100, 2), never negative.
func Discount(rule *Rule, subtotal decimal.Decimal) decimal.Decimal {
	amount := subtotal.Mul(rule.PercentOff).Div(hundred).Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
