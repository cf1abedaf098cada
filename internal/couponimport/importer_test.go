package couponimport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

type memStore struct {
	mu      sync.Mutex
	coupons map[string]coupon.Coupon
	err     error
}

func (m *memStore) Upsert(_ context.Context, c coupon.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.coupons == nil {
		m.coupons = make(map[string]coupon.Coupon)
	}
	m.coupons[c.Code] = c
	return nil
}

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func TestParseRecord(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	limit := 10

	tests := []struct {
		name    string
		rec     []string
		want    coupon.Coupon
		wantErr bool
	}{
		{
			name: "percentage minimal",
			rec:  []string{"quarter", "percentage", "25"},
			want: coupon.Coupon{
				Code:          "QUARTER",
				DiscountType:  coupon.DiscountPercentage,
				DiscountValue: decimal.NewFromInt(25),
				Active:        true,
			},
		},
		{
			name: "fixed with all fields",
			rec:  []string{"FIVEHUNDRED", "FIXED_AMOUNT", "500.00", "2030-01-01T00:00:00Z", "10", "500 off"},
			want: coupon.Coupon{
				Code:          "FIVEHUNDRED",
				Description:   "500 off",
				DiscountType:  coupon.DiscountFixedAmount,
				DiscountValue: decimal.RequireFromString("500.00"),
				ExpiresAt:     &expires,
				UsageLimit:    &limit,
				Active:        true,
			},
		},
		{name: "too few fields", rec: []string{"X", "PERCENTAGE"}, wantErr: true},
		{name: "empty code", rec: []string{" ", "PERCENTAGE", "5"}, wantErr: true},
		{name: "bad value", rec: []string{"X", "PERCENTAGE", "five"}, wantErr: true},
		{name: "negative value", rec: []string{"X", "FIXED_AMOUNT", "-1"}, wantErr: true},
		{name: "percentage above 100", rec: []string{"X", "PERCENTAGE", "101"}, wantErr: true},
		{name: "unknown type", rec: []string{"X", "BOGO", "1"}, wantErr: true},
		{name: "bad expiry", rec: []string{"X", "PERCENTAGE", "5", "tomorrow"}, wantErr: true},
		{name: "bad usage limit", rec: []string{"X", "PERCENTAGE", "5", "", "-3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord(tt.rec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Code, got.Code)
			assert.Equal(t, tt.want.Description, got.Description)
			assert.Equal(t, tt.want.DiscountType, got.DiscountType)
			assert.True(t, tt.want.DiscountValue.Equal(got.DiscountValue))
			assert.Equal(t, tt.want.ExpiresAt, got.ExpiresAt)
			assert.Equal(t, tt.want.UsageLimit, got.UsageLimit)
			assert.True(t, got.Active)
		})
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.csv.gz",
		"code,discount_type,discount_value",
		"WELCOME,PERCENTAGE,10",
		"SHARED,FIXED_AMOUNT,100",
		"broken line",
		"WELCOME,PERCENTAGE,15",
	)
	b := writeGz(t, dir, "b.csv.gz",
		"SPRING,FIXED_AMOUNT,250",
		"shared,PERCENTAGE,50",
		"BAD,PERCENTAGE,300",
	)

	store := &memStore{}
	res, err := New(store, Options{ExpectedCodes: 100}).Import(context.Background(), []string{a, b})
	require.NoError(t, err)

	assert.Equal(t, []string{"SHARED"}, res.Conflicts)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, 3, res.Imported)

	require.Len(t, store.coupons, 2)
	assert.NotContains(t, store.coupons, "SHARED")
	assert.True(t, decimal.NewFromInt(15).Equal(store.coupons["WELCOME"].DiscountValue), "last definition wins")
	assert.Equal(t, coupon.DiscountFixedAmount, store.coupons["SPRING"].DiscountType)
}

func TestImportErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeGz(t, dir, "good.csv.gz", "WELCOME,PERCENTAGE,10")

	t.Run("no files", func(t *testing.T) {
		_, err := New(&memStore{}, Options{}).Import(context.Background(), nil)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := New(&memStore{}, Options{}).Import(context.Background(), []string{good, filepath.Join(dir, "nope.gz")})
		require.Error(t, err)
	})

	t.Run("not gzip", func(t *testing.T) {
		plain := filepath.Join(dir, "plain.csv")
		require.NoError(t, os.WriteFile(plain, []byte("WELCOME,PERCENTAGE,10\n"), 0o600))
		_, err := New(&memStore{}, Options{}).Import(context.Background(), []string{plain})
		require.Error(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		storeErr := errors.New("db down")
		_, err := New(&memStore{err: storeErr}, Options{}).Import(context.Background(), []string{good})
		require.ErrorIs(t, err, storeErr)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(&memStore{}, Options{}).Import(ctx, []string{good})
		require.ErrorIs(t, err, context.Canceled)
	})
}
