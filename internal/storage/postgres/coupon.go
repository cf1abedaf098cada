package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

const (
	findActiveCouponSQL = `SELECT code, description, discount_type, discount_value,
			expiration_date, usage_limit, usage_count, is_active
		FROM coupons WHERE code = $1 AND is_active = TRUE`

	incrementCouponUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE code = $1 AND is_active = TRUE
			AND (usage_limit IS NULL OR usage_count < usage_limit)`

	linkOrderCouponSQL = `INSERT INTO order_coupons (order_id, coupon_code, discount_amount)
		VALUES ($1, $2, $3)`

	upsertCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount_value,
			expiration_date, usage_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
			expiration_date = EXCLUDED.expiration_date, usage_limit = EXCLUDED.usage_limit,
			is_active = EXCLUDED.is_active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindActiveByCode returns the active coupon or coupon.ErrInvalidCoupon.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, findActiveCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// RecordUsage increments the usage counter under the limit guard and links
// the coupon to the order. It must run in the checkout transaction.
func (r *CouponRepository) RecordUsage(ctx context.Context, code, orderID string, amount decimal.Decimal) (bool, error) {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, incrementCouponUsageSQL, code)
	if err != nil {
		return false, fmt.Errorf("incrementing usage of %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := q.Exec(ctx, linkOrderCouponSQL, orderID, code, amount); err != nil {
		return false, fmt.Errorf("linking coupon %q to order %q: %w", code, orderID, err)
	}
	return true, nil
}

// Upsert inserts or replaces a coupon definition. Usage counters are kept.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertCouponSQL,
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue,
		c.ExpiresAt, c.UsageLimit, c.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c  coupon.Coupon
		dt string
	)
	err := row.Scan(
		&c.Code, &c.Description, &dt, &c.DiscountValue,
		&c.ExpiresAt, &c.UsageLimit, &c.UsageCount, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(dt)
	return c, err
}
