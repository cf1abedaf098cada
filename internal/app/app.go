package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/payment"
	"github.com/xenking/storefront-checkout/internal/events"
	"github.com/xenking/storefront-checkout/internal/handler"
	"github.com/xenking/storefront-checkout/internal/mercadopago"
	"github.com/xenking/storefront-checkout/internal/metrics"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	redisstore "github.com/xenking/storefront-checkout/internal/storage/redis"
	"github.com/xenking/storefront-checkout/pkg/health"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis for carts.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingFunc("postgres", pool.Ping))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingFunc("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Order events.
	var orderEvents order.Events = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		orderEvents = publisher
	} else {
		lg.Info("No Kafka brokers configured, order events are dropped")
	}

	h, err := newAPIHandler(ctx, cfg, pool, rdb, orderEvents, m.MeterProvider().Meter("storefront"))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	instrument := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "storefront-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		)
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			instrument,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				ExposeHeaders:    []string{"X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newAPIHandler wires the payment provider, repositories and domain services
// on top of the storage clients.
func newAPIHandler(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	rdb redis.UniversalClient,
	orderEvents order.Events,
	meter metric.Meter,
) (*handler.Handler, error) {
	lg := zctx.From(ctx)

	// Payment provider.
	mp := mercadopago.NewClient(mercadopago.Options{
		BaseURL:     cfg.Payment.BaseURL,
		AccessToken: cfg.Payment.AccessToken,
		Timeout:     cfg.Payment.Timeout,
	})
	var preferences payment.PreferenceCreator = mp
	if cfg.Payment.Simulate {
		lg.Warn("Payment preferences are simulated")
		preferences = mercadopago.NewSimulator(cfg.Payment.RedirectBaseURL)
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	resellerRepo := postgres.NewResellerRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	cartStore := redisstore.NewCartStore(rdb, cfg.Redis.CartTTL)

	// Domain services.
	orderService := order.NewService(order.Config{
		PaymentMethod:  cfg.Checkout.PaymentMethod,
		ShippingMethod: cfg.Checkout.ShippingMethod,
	}, order.Deps{
		Tx:       postgres.NewTransactor(pool),
		Resolver: catalog.NewResolver(productRepo),
		Products: productRepo,
		Coupons:  coupon.NewRepoValidator(couponRepo),
		Usage:    couponRepo,
		Orders:   orderRepo,
		Events:   orderEvents,
	})
	cartService := cart.NewService(cartStore, productRepo)
	checkoutService := checkout.NewService(payment.BackURLs{
		Success: cfg.Payment.SuccessURL,
		Failure: cfg.Payment.FailureURL,
		Pending: cfg.Payment.PendingURL,
	}, checkout.Deps{
		Carts:     cartStore,
		Addresses: addressRepo,
		Resellers: resellerRepo,
		Orders:    orderService,
		Payments:  preferences,
	})
	reconciler := payment.NewReconciler(mp, orderService, cfg.Payment.Timeout)

	appMetrics, err := metrics.New(meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}

	return handler.NewHandler(handler.Deps{
		Checkout:   checkoutService,
		Orders:     orderService,
		Carts:      cartService,
		Reconciler: reconciler,
		Auth:       auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
		Metrics:    appMetrics,
	}), nil
}
