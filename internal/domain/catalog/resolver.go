package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// Resolver validates cart lines against catalog snapshots.
type Resolver struct {
	products Repository
}

// NewResolver creates a Resolver backed by the given Repository.
func NewResolver(products Repository) *Resolver {
	return &Resolver{products: products}
}

// Resolve loads every distinct product referenced by lines in one batch and
// returns one PricedLine per input line, in input order. Stock is checked
// against the total quantity requested per product, so repeated lines for
// the same product cannot jointly exceed stock. Resolve has no side effects.
func (r *Resolver) Resolve(ctx context.Context, lines []Line) ([]PricedLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	requested := make(map[string]int, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		if _, seen := requested[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		requested[l.ProductID] += l.Quantity
	}

	fetched, err := r.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]Snapshot, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, &ProductUnavailableError{ProductID: id}
		}
		if qty := requested[id]; qty > p.Stock {
			return nil, &InsufficientStockError{
				ProductID: id,
				Name:      p.Name,
				Requested: qty,
				Available: p.Stock,
			}
		}
	}

	priced := make([]PricedLine, len(lines))
	for i, l := range lines {
		p := byID[l.ProductID]
		priced[i] = PricedLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.EffectivePrice(),
		}
	}
	return priced, nil
}
