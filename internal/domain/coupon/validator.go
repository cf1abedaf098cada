package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator resolves a coupon code against a subtotal.
type Validator interface {
	Apply(ctx context.Context, code string, subtotal decimal.Decimal) (Discount, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Apply returns a zero Discount for a blank code. Otherwise it looks up the
// active coupon, checks expiration and usage limit, and computes the discount.
// Usage is not recorded here; the order transaction does that.
func (v *RepoValidator) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Discount{Amount: decimal.Zero}, nil
	}

	c, err := v.repo.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return Discount{}, ErrInvalidCoupon
		}
		return Discount{}, errors.Wrap(err, "lookup coupon")
	}

	if c.Expired(v.now()) {
		return Discount{}, ErrCouponExpired
	}
	if c.Exhausted() {
		return Discount{}, ErrCouponUsageLimitReached
	}

	return Discount{
		Amount: Calculate(c, subtotal),
		Coupon: c,
	}, nil
}
