package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/reseller"
)

const (
	findResellerBySlugSQL = `SELECT user_id, unique_store_slug, commission_rate, is_active
		FROM reseller_profiles WHERE unique_store_slug = $1 AND is_active = TRUE`

	upsertResellerSQL = `INSERT INTO reseller_profiles (user_id, unique_store_slug, commission_rate, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET unique_store_slug = EXCLUDED.unique_store_slug,
			commission_rate = EXCLUDED.commission_rate, is_active = EXCLUDED.is_active`
)

var _ reseller.Repository = (*ResellerRepository)(nil)

// ResellerRepository implements reseller.Repository backed by PostgreSQL.
type ResellerRepository struct {
	pool *pgxpool.Pool
}

// NewResellerRepository returns a ResellerRepository that uses the given pool.
func NewResellerRepository(pool *pgxpool.Pool) *ResellerRepository {
	return &ResellerRepository{pool: pool}
}

// FindActiveBySlug returns the active reseller owning slug.
func (r *ResellerRepository) FindActiveBySlug(ctx context.Context, slug string) (*reseller.Profile, error) {
	var p reseller.Profile
	err := conn(ctx, r.pool).QueryRow(ctx, findResellerBySlugSQL, slug).Scan(
		&p.UserID, &p.StoreSlug, &p.CommissionRate, &p.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reseller.ErrNotFound
		}
		return nil, fmt.Errorf("finding reseller %q: %w", slug, err)
	}
	return &p, nil
}

// Upsert inserts or replaces a reseller profile.
func (r *ResellerRepository) Upsert(ctx context.Context, p reseller.Profile) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertResellerSQL, p.UserID, p.StoreSlug, p.CommissionRate, p.Active)
	if err != nil {
		return fmt.Errorf("upserting reseller %q: %w", p.UserID, err)
	}
	return nil
}
