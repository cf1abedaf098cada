// Package reseller resolves store slugs to the reseller credited with a sale.
package reseller

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no active reseller owns the slug.
var ErrNotFound = errors.New("reseller not found")

// Profile is a reseller storefront.
type Profile struct {
	UserID         string
	StoreSlug      string
	CommissionRate decimal.Decimal
	Active         bool
}

// Repository looks up reseller profiles.
type Repository interface {
	FindActiveBySlug(ctx context.Context, slug string) (*Profile, error)
}
