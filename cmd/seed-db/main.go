package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/reseller"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

type seedConfig struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
	userID       string
	resellerID   string
}

func main() {
	var cfg seedConfig

	flag.StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&cfg.apiKey, "api-key", "", "API key to seed (or STOREFRONT_SEED_API_KEY env)")
	flag.StringVar(&cfg.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STOREFRONT_API_KEY_PEPPER env)")
	flag.StringVar(&cfg.userID, "user-id", "demo-user", "user the seeded API key and address belong to")
	flag.StringVar(&cfg.resellerID, "reseller-id", "demo-reseller", "user id of the seeded reseller profile")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.databaseURL == "" {
		cfg.databaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("STOREFRONT_SEED_API_KEY")
	}
	if cfg.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or STOREFRONT_SEED_API_KEY")
	}
	if cfg.apiKeyPepper == "" {
		cfg.apiKeyPepper = os.Getenv("STOREFRONT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		cancel()
		_ = lg.Sync()
		os.Exit(1)
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg seedConfig) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), cfg.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	addr := address.Address{
		ID:         "addr-demo-home",
		UserID:     cfg.userID,
		Alias:      "Home",
		Street:     "Av. Corrientes",
		Number:     "1234",
		PostalCode: "C1043",
		City:       "Buenos Aires",
		State:      "CABA",
		IsDefault:  true,
	}
	if err := postgres.NewAddressRepository(pool).Upsert(ctx, addr); err != nil {
		return errors.Wrap(err, "seed address")
	}
	lg.Info("Upserted address", zap.String("id", addr.ID), zap.String("user_id", addr.UserID))

	profile := reseller.Profile{
		UserID:         cfg.resellerID,
		StoreSlug:      "demo-store",
		CommissionRate: decimal.RequireFromString("0.10"),
		Active:         true,
	}
	if err := postgres.NewResellerRepository(pool).Upsert(ctx, profile); err != nil {
		return errors.Wrap(err, "seed reseller")
	}
	lg.Info("Upserted reseller", zap.String("slug", profile.StoreSlug))

	key := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(cfg.apiKeyPepper), cfg.apiKey),
		UserID:  cfg.userID,
		Name:    "Demo user key",
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Upserted API key", zap.String("id", key.ID), zap.String("user_id", key.UserID))

	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}
	lg.Info("Upserting products", zap.Int("count", len(products)), zap.String("path", path))

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	return nil
}

func decodeProducts(data []byte) ([]catalog.Snapshot, error) {
	var products []catalog.Snapshot
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return err
		}
		if p.ID == "" {
			return errors.New("product without id")
		}
		products = append(products, p)
		return nil
	})
	return products, err
}

func decodeProduct(d *jx.Decoder) (p catalog.Snapshot, err error) {
	err = d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "sku":
			p.SKU, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.ListPrice, err = decodeDecimal(d)
		case "salePrice":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v decimal.Decimal
			v, err = decodeDecimal(d)
			p.SalePrice = decimal.NewNullDecimal(v)
		case "stock":
			p.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	}
	return decimal.NewFromString(raw)
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *postgres.CouponRepository) error {
	fiveHundredLimit := 100
	coupons := []coupon.Coupon{
		{
			Code:          "FIVEHUNDRED",
			Description:   "500 off any order",
			DiscountType:  coupon.DiscountFixedAmount,
			DiscountValue: decimal.NewFromInt(500),
			UsageLimit:    &fiveHundredLimit,
			Active:        true,
		},
		{
			Code:          "QUARTER",
			Description:   "25% off the whole cart",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(25),
			Active:        true,
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}
