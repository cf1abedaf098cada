// Package cart manages per-user shopping carts.
package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
)

// ErrInvalidQuantity is returned when a non-positive quantity is added.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// Item is a product and quantity held in a cart.
type Item struct {
	ProductID string
	Quantity  int
}

// Store persists carts.
type Store interface {
	Get(ctx context.Context, userID string) ([]Item, error)
	// Add increases the quantity of a product, creating the line when absent.
	Add(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// Service validates cart mutations against the catalog.
type Service struct {
	store    Store
	products catalog.Repository
}

// NewService creates a cart Service.
func NewService(store Store, products catalog.Repository) *Service {
	return &Service{store: store, products: products}
}

// Get returns the user's cart items.
func (s *Service) Get(ctx context.Context, userID string) ([]Item, error) {
	items, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return items, nil
}

// Add puts qty units of a known product into the cart and returns the
// updated cart.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) ([]Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, &catalog.ProductUnavailableError{ProductID: productID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	if err := s.store.Add(ctx, userID, productID, qty); err != nil {
		return nil, errors.Wrap(err, "add to cart")
	}
	return s.Get(ctx, userID)
}

// Remove drops a product from the cart and returns the updated cart.
func (s *Service) Remove(ctx context.Context, userID, productID string) ([]Item, error) {
	if err := s.store.Remove(ctx, userID, productID); err != nil {
		return nil, errors.Wrap(err, "remove from cart")
	}
	return s.Get(ctx, userID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Lines converts cart items into catalog lines.
func Lines(items []Item) []catalog.Line {
	lines := make([]catalog.Line, len(items))
	for i, it := range items {
		lines[i] = catalog.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines
}
