package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Calculate returns the discount the coupon grants on subtotal. The result is
// not clamped against the subtotal. Unknown discount types grant nothing.
func Calculate(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountPercentage:
		return floorAtZero(subtotal.Mul(c.DiscountValue).Div(hundred)).Round(2)
	case DiscountFixedAmount:
		return floorAtZero(c.DiscountValue).Round(2)
	default:
		return decimal.Zero
	}
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
