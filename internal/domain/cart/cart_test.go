package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
)

type mockStore struct {
	items map[string]int
	err   error
}

func (m *mockStore) Get(_ context.Context, _ string) ([]Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Item
	for id, q := range m.items {
		out = append(out, Item{ProductID: id, Quantity: q})
	}
	return out, nil
}

func (m *mockStore) Add(_ context.Context, _, productID string, qty int) error {
	if m.err != nil {
		return m.err
	}
	m.items[productID] += qty
	return nil
}

func (m *mockStore) Remove(_ context.Context, _, productID string) error {
	delete(m.items, productID)
	return m.err
}

func (m *mockStore) Clear(_ context.Context, _ string) error {
	m.items = map[string]int{}
	return m.err
}

type mockProducts struct {
	known map[string]bool
	err   error
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*catalog.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !m.known[id] {
		return nil, catalog.ErrProductNotFound
	}
	return &catalog.Snapshot{ID: id}, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, _ []string) ([]catalog.Snapshot, error) {
	return nil, nil
}

func (m *mockProducts) DecrementStock(_ context.Context, _ string, _ int) (bool, error) {
	return false, nil
}

func TestService_Add(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		qty       int
		products  *mockProducts
		check     func(t *testing.T, items []Item, err error)
	}{
		{
			name:      "adds known product",
			productID: "tee",
			qty:       2,
			products:  &mockProducts{known: map[string]bool{"tee": true}},
			check: func(t *testing.T, items []Item, err error) {
				require.NoError(t, err)
				require.Len(t, items, 1)
				assert.Equal(t, Item{ProductID: "tee", Quantity: 2}, items[0])
			},
		},
		{
			name:      "rejects zero quantity",
			productID: "tee",
			qty:       0,
			products:  &mockProducts{known: map[string]bool{"tee": true}},
			check: func(t *testing.T, _ []Item, err error) {
				require.ErrorIs(t, err, ErrInvalidQuantity)
			},
		},
		{
			name:      "rejects unknown product",
			productID: "ghost",
			qty:       1,
			products:  &mockProducts{known: map[string]bool{}},
			check: func(t *testing.T, _ []Item, err error) {
				var puErr *catalog.ProductUnavailableError
				require.ErrorAs(t, err, &puErr)
				assert.Equal(t, "ghost", puErr.ProductID)
			},
		},
		{
			name:      "wraps catalog failures",
			productID: "tee",
			qty:       1,
			products:  &mockProducts{err: errors.New("timeout")},
			check: func(t *testing.T, _ []Item, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "get product")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockStore{items: map[string]int{}}, tt.products)
			items, err := svc.Add(context.Background(), "user-1", tt.productID, tt.qty)
			tt.check(t, items, err)
		})
	}
}

func TestService_RemoveAndClear(t *testing.T) {
	store := &mockStore{items: map[string]int{"tee": 1, "cap": 2}}
	svc := NewService(store, &mockProducts{})
	ctx := context.Background()

	items, err := svc.Remove(ctx, "user-1", "tee")
	require.NoError(t, err)
	assert.Equal(t, []Item{{ProductID: "cap", Quantity: 2}}, items)

	require.NoError(t, svc.Clear(ctx, "user-1"))
	items, err = svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLines(t *testing.T) {
	lines := Lines([]Item{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 3}})
	assert.Equal(t, []catalog.Line{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 3}}, lines)
}
