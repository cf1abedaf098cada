package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/couponimport"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL   string
		expectedCodes uint
		fpr           float64
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expectedCodes, "expected-codes", 1_000_000, "estimated number of codes per file")
	flag.Float64Var(&fpr, "fpr", 0.001, "bloom filter false positive rate")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: coupon-import [flags] file.csv.gz [file.csv.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	opts := couponimport.Options{ExpectedCodes: expectedCodes, FalsePositiveRate: fpr}
	if err := run(ctx, databaseURL, opts, flag.Args()); err != nil {
		lg.Error("Coupon import failed", zap.Error(err))
		cancel()
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, opts couponimport.Options, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	res, err := couponimport.New(postgres.NewCouponRepository(pool), opts).Import(ctx, files)
	if err != nil {
		return err
	}
	for _, code := range res.Conflicts {
		zctx.From(ctx).Warn("Coupon defined in several files, skipped", zap.String("code", code))
	}
	return nil
}
