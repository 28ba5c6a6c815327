package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/api"
	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/storage/local"
	"github.com/xenking/storefront-cart/internal/storage/postgres"
	"github.com/xenking/storefront-cart/pkg/health"
	"github.com/xenking/storefront-cart/pkg/httpmiddleware"
)

// Telemetry supplies the OpenTelemetry providers. *app.Telemetry from
// go-faster/sdk satisfies it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Cart.Policy()
	if err != nil {
		return errors.Wrap(err, "cart policy")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Cart storage: a directory of compressed files, or process memory.
	var (
		store cart.Store
		used  func() int64
	)
	if cfg.Storage.Dir != "" {
		fs, err := local.OpenFileStore(cfg.Storage.Dir, cfg.Storage.Quota)
		if err != nil {
			return errors.Wrap(err, "open cart store")
		}
		store, used = fs, fs.Used
		lg.Info("Cart storage on disk",
			zap.String("dir", cfg.Storage.Dir),
			zap.Int64("used", fs.Used()),
		)
	} else {
		ms := local.NewMemoryStore(int(cfg.Storage.Quota))
		store, used = ms, func() int64 { return int64(ms.Used()) }
		lg.Info("Cart storage in memory")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("cart_store", time.Second, health.StoreCheck(store))
	healthSvc.AddReadinessCheck("cart_store_usage", time.Second,
		health.StoreUsageCheck(used, cfg.Storage.Quota*9/10))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// Domain services.
	codes, err := couponRepo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	couponValidator := coupon.NewFilteredValidator(codes, cfg.Coupons.FalsePositiveRate,
		coupon.NewRepoValidator(couponRepo))
	go refreshCoupons(ctx, couponRepo, couponValidator, cfg.Coupons.RefreshInterval)
	orderService := order.NewService(couponValidator, orderRepo)

	// Cart sessions.
	meter := m.MeterProvider().Meter("storefront")
	lines, err := meter.Int64UpDownCounter("storefront.cart.lines",
		metric.WithDescription("Line items held by loaded carts"),
	)
	if err != nil {
		return errors.Wrap(err, "create lines counter")
	}
	sessions := api.NewSessions(store,
		cart.Config{MaxPayloadBytes: cfg.Cart.MaxPayloadBytes, Policy: policy},
		lg.Named("cart"),
		func(delta int) { lines.Add(ctx, int64(delta)) },
	)
	go sessions.Run(ctx, time.Minute, cfg.Cart.SessionIdle)

	// HTTP handlers.
	h, err := api.NewHandler(
		api.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL, Currency: cfg.Cart.Currency},
		productRepo,
		orderService,
		sessions,
		meter,
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
		Key:    httpmiddleware.CartOrIP(api.CartIDHeader),
	})
	go limiter.Run(ctx)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.RequestID(),
				httpmiddleware.Recovery(),
				httpmiddleware.LogRequests(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					AllowOrigins:     cfg.CORS.Origins,
					AllowHeaders:     []string{"Content-Type", api.CartIDHeader, httpmiddleware.RequestIDHeader},
					ExposeHeaders:    []string{api.CartIDHeader, httpmiddleware.RequestIDHeader},
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
				limiter.Middleware(),
			),
			"storefront-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
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

// codeLister is satisfied by *postgres.CouponRepository.
type codeLister interface {
	ListCodes(ctx context.Context) ([]string, error)
}

// refreshCoupons rebuilds the coupon prefilter every interval so codes added
// after startup are accepted. A failed listing keeps the previous filter.
func refreshCoupons(ctx context.Context, repo codeLister, v *coupon.FilteredValidator, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			codes, err := repo.ListCodes(ctx)
			if err != nil {
				zctx.From(ctx).Warn("Coupon filter refresh failed", zap.Error(err))
				continue
			}
			v.Reload(codes)
			zctx.From(ctx).Debug("Coupon filter refreshed", zap.Int("codes", len(codes)))
		}
	}
}
