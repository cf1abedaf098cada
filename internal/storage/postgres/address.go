package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/address"
)

const (
	findAddressForUserSQL = `SELECT id, user_id, alias, street, number, postal_code, city, state, is_default
		FROM addresses WHERE id = $1 AND user_id = $2`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, alias, street, number, postal_code, city, state, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, alias = EXCLUDED.alias,
			street = EXCLUDED.street, number = EXCLUDED.number, postal_code = EXCLUDED.postal_code,
			city = EXCLUDED.city, state = EXCLUDED.state, is_default = EXCLUDED.is_default`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// FindByIDForUser returns address.ErrNotFound unless the address belongs to userID.
func (r *AddressRepository) FindByIDForUser(ctx context.Context, userID, id string) (*address.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, findAddressForUserSQL, id, userID)
	if err != nil {
		return nil, fmt.Errorf("finding address %q: %w", id, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (address.Address, error) {
		var a address.Address
		err := row.Scan(&a.ID, &a.UserID, &a.Alias, &a.Street, &a.Number,
			&a.PostalCode, &a.City, &a.State, &a.IsDefault)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("finding address %q: %w", id, err)
	}
	return &a, nil
}

// Upsert inserts or replaces an address.
func (r *AddressRepository) Upsert(ctx context.Context, a address.Address) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertAddressSQL,
		a.ID, a.UserID, a.Alias, a.Street, a.Number, a.PostalCode, a.City, a.State, a.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}
