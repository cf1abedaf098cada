package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes DiscountValue percent off the subtotal.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixedAmount takes DiscountValue off the subtotal.
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown, inactive,
	// expired or exhausted. The more specific errors below wrap it.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is past its expiration date.
	ErrCouponExpired = errors.Wrap(ErrInvalidCoupon, "coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.Wrap(ErrInvalidCoupon, "coupon usage limit reached")
)

// Coupon is a discount code with its eligibility constraints.
type Coupon struct {
	Code          string
	Description   string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	ExpiresAt     *time.Time
	UsageLimit    *int
	UsageCount    int
	Active        bool
}

// Exhausted reports whether the usage limit, if any, has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}

// Expired reports whether the coupon's expiration date is not in the future
// at now. A coupon expires at the exact instant of ExpiresAt.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Discount holds the computed discount and the coupon that produced it.
type Discount struct {
	Amount decimal.Decimal
	Coupon *Coupon
}

// Applied reports whether a coupon was applied.
func (d Discount) Applied() bool {
	return d.Coupon != nil
}

// Repository provides lookup and usage accounting of coupons.
type Repository interface {
	// FindActiveByCode returns the active coupon with the given code or
	// ErrInvalidCoupon.
	FindActiveByCode(ctx context.Context, code string) (*Coupon, error)
	// RecordUsage increments the usage counter and links the coupon to the
	// order. It reports false when the usage limit guard rejected the update.
	RecordUsage(ctx context.Context, code, orderID string, amount decimal.Decimal) (bool, error)
}
