// Package catalog resolves cart lines against the product catalog: it checks
// existence and stock and freezes the effective unit price of every line.
package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyCart is returned when a checkout is attempted without lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrProductNotFound is returned by single-product lookups.
	ErrProductNotFound = errors.New("product not found")
)

// ProductUnavailableError indicates a referenced product does not exist.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds the stock
// on hand for a product.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// InvalidQuantityError indicates a line carries a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// Snapshot is the subset of a catalog row the checkout reads.
type Snapshot struct {
	ID        string
	SKU       string
	Name      string
	ListPrice decimal.Decimal
	SalePrice decimal.NullDecimal
	Stock     int
}

// EffectivePrice returns the sale price when one is set, otherwise the list price.
func (s Snapshot) EffectivePrice() decimal.Decimal {
	if s.SalePrice.Valid {
		return s.SalePrice.Decimal
	}
	return s.ListPrice
}

// Line is a requested (product, quantity) pair.
type Line struct {
	ProductID string
	Quantity  int
}

// PricedLine is a Line with the product name and unit price frozen at
// resolution time.
type PricedLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Amount returns UnitPrice * Quantity.
func (l PricedLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Repository reads catalog snapshots and applies stock decrements.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Snapshot, error)
	GetByIDs(ctx context.Context, ids []string) ([]Snapshot, error)
	// DecrementStock subtracts qty from the product stock only when enough
	// stock remains. It reports false when the guard rejected the update.
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
}
