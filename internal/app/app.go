// Package app wires configuration, storage, services and the HTTP server
// into a running application.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkrv/cafeorder/internal/domain/cart"
	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/order"
	"github.com/mkrv/cafeorder/internal/domain/payment"
	"github.com/mkrv/cafeorder/internal/gateway"
	"github.com/mkrv/cafeorder/internal/handler"
	"github.com/mkrv/cafeorder/internal/session"
	"github.com/mkrv/cafeorder/internal/storage/postgres"
	"github.com/mkrv/cafeorder/internal/yookassa"
	"github.com/mkrv/cafeorder/pkg/health"
	"github.com/mkrv/cafeorder/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the payment
// poller, and handles graceful shutdown. It is the single wiring point for
// the application.
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

	// Session store: Redis when configured, in-process otherwise.
	var sessions session.Store
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			_ = redisClient.Close()
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		sessions = session.NewRedisStore(redisClient, cfg.Redis.SessionTTL)
	} else {
		lg.Info("Redis not configured, using in-memory sessions")
		sessions = session.NewMemoryStore(cfg.Redis.SessionTTL)
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	userRepo := postgres.NewUserRepository(pool)
	menuRepo := postgres.NewMenuRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)

	// Payment provider.
	provider := yookassa.NewClient(cfg.Payment.ShopID, cfg.Payment.SecretKey, yookassa.Options{
		BaseURL: cfg.Payment.BaseURL,
		Timeout: cfg.Payment.Timeout,
	})

	// Domain services.
	cartService := cart.NewService(cartRepo, menuRepo, userRepo)
	orderService := order.NewService(orderRepo, cartRepo, userRepo, order.FeePolicy{
		Fee:      money.Money{Amount: cfg.Delivery.Fee, Currency: money.RUB},
		FreeOver: money.Money{Amount: cfg.Delivery.FreeOver, Currency: money.RUB},
	})
	paymentService := payment.NewService(paymentRepo, orderRepo, provider)
	botGateway := gateway.New(cartService, orderService, paymentService, menuRepo, sessions, cfg.Payment.ReturnURL)

	// HTTP routes.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.New(orderService, paymentService, menuRepo).Routes(mux)
	handler.NewBotHandler(botGateway).Routes(mux)

	// Trace and measure every request, including webhooks.
	instrumented := otelhttp.NewHandler(mux, "cafeorder",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	poller := payment.NewPoller(paymentService, paymentRepo, cfg.Poller.Interval, cfg.Poller.MinAge, cfg.Poller.Batch)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		if err := poller.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "payment poller")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: drop readiness, drain, then stop.
		<-gctx.Done()
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
		return nil
	})
	return g.Wait()
}
