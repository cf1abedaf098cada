//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// A second run is a no-op.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

type noopEvents struct{}

func (noopEvents) OrderPlaced(context.Context, *order.Order) error { return nil }
func (noopEvents) OrderStatusChanged(context.Context, string, order.Status, order.Status) error {
	return nil
}

func newOrderService(pool *pgxpool.Pool) *order.Service {
	products := NewProductRepository(pool)
	coupons := NewCouponRepository(pool)
	return order.NewService(order.Config{PaymentMethod: "MERCADO_PAGO", ShippingMethod: "STANDARD"}, order.Deps{
		Tx:       NewTransactor(pool),
		Resolver: catalog.NewResolver(products),
		Products: products,
		Coupons:  coupon.NewRepoValidator(coupons),
		Usage:    coupons,
		Orders:   NewOrderRepository(pool),
		Events:   noopEvents{},
	})
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, id string, price int64, stock int) {
	t.Helper()
	require.NoError(t, NewProductRepository(pool).Upsert(context.Background(), catalog.Snapshot{
		ID:        id,
		SKU:       "SKU-" + id,
		Name:      "Product " + id,
		ListPrice: decimal.NewFromInt(price),
		Stock:     stock,
	}))
}

func stockOf(t *testing.T, pool *pgxpool.Pool, id string) int {
	t.Helper()
	p, err := NewProductRepository(pool).GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCheckoutPersistsOrder(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	seedProduct(t, pool, "p1", 1000, 5)
	limit := 10
	require.NoError(t, NewCouponRepository(pool).Upsert(ctx, coupon.Coupon{
		Code:          "QUARTER",
		DiscountType:  coupon.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(25),
		UsageLimit:    &limit,
		Active:        true,
	}))

	svc := newOrderService(pool)
	placed, err := svc.Checkout(ctx, order.CheckoutRequest{
		UserID:          "u1",
		Lines:           []catalog.Line{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: order.ShippingAddress{Alias: "Home", Street: "Main", City: "Cordoba"},
		CouponCode:      "QUARTER",
	})
	require.NoError(t, err)
	assert.Equal(t, "1500", placed.Total.String())
	assert.Equal(t, 3, stockOf(t, pool, "p1"))

	got, err := svc.GetForUser(ctx, "u1", placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPendingPayment, got.Status)
	require.NotNil(t, got.ShippingAddress)
	assert.Equal(t, "Main", got.ShippingAddress.Street)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	require.NotNil(t, got.CouponCode)
	assert.Equal(t, "QUARTER", *got.CouponCode)
	assert.Equal(t, "500", got.DiscountAmount.Decimal.String())

	_, err = svc.GetForUser(ctx, "someone-else", placed.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	c, err := NewCouponRepository(pool).FindActiveByCode(ctx, "QUARTER")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsageCount)

	change, err := svc.TransitionStatus(ctx, placed.ID, order.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, order.StatusChanged, change)
	change, err = svc.TransitionStatus(ctx, placed.ID, order.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, order.StatusUnchanged, change)
	_, err = svc.TransitionStatus(ctx, placed.ID, order.StatusRejected)
	require.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestSoldProductCanBeDeleted(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	seedProduct(t, pool, "p1", 250, 4)

	svc := newOrderService(pool)
	placed, err := svc.Checkout(ctx, order.CheckoutRequest{
		UserID:          "u1",
		Lines:           []catalog.Line{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: order.ShippingAddress{Street: "Main"},
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `DELETE FROM products WHERE id = 'p1'`)
	require.NoError(t, err)

	got, err := svc.GetForUser(ctx, "u1", placed.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "p1", got.Lines[0].ProductID)
	assert.Equal(t, "Product p1", got.Lines[0].ProductName)
	assert.True(t, decimal.NewFromInt(250).Equal(got.Lines[0].UnitPrice))

	_, err = svc.Checkout(ctx, order.CheckoutRequest{
		UserID:          "u1",
		Lines:           []catalog.Line{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: order.ShippingAddress{Street: "Main"},
	})
	var unavailable *catalog.ProductUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "p1", unavailable.ProductID)
}

func TestCheckoutFailureLeavesNoTrace(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	seedProduct(t, pool, "p1", 100, 1)
	seedProduct(t, pool, "p2", 100, 1)

	svc := newOrderService(pool)
	_, err := svc.Checkout(ctx, order.CheckoutRequest{
		UserID: "u1",
		Lines: []catalog.Line{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
		},
		ShippingAddress: order.ShippingAddress{Street: "Main"},
	})
	var stockErr *catalog.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))

	assert.Equal(t, 1, stockOf(t, pool, "p1"))
	orders, err := svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestConcurrentCheckoutOfLastUnit(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	seedProduct(t, pool, "last", 100, 1)

	svc := newOrderService(pool)
	const buyers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(ctx, order.CheckoutRequest{
				UserID:          "buyer",
				Lines:           []catalog.Line{{ProductID: "last", Quantity: 1}},
				ShippingAddress: order.ShippingAddress{Street: "Main"},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range errs {
		var stockErr *catalog.InsufficientStockError
		assert.True(t, errors.As(err, &stockErr), "unexpected error: %v", err)
	}
	assert.Equal(t, 0, stockOf(t, pool, "last"))

	orders, err := svc.ListForUser(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
