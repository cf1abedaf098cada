// Package address exposes read access to a user's saved shipping addresses.
package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when the address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// Address is a saved shipping address.
type Address struct {
	ID         string
	UserID     string
	Alias      string
	Street     string
	Number     string
	PostalCode string
	City       string
	State      string
	IsDefault  bool
}

// Repository looks up addresses scoped to their owner.
type Repository interface {
	FindByIDForUser(ctx context.Context, userID, id string) (*Address, error)
}
