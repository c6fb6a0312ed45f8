// Package app wires the pricing API: storage, cache, domain services, HTTP
// handlers and middlewares.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/cache"
	"github.com/xenking/pos-pricing/internal/domain/checkout"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/rule"
	"github.com/xenking/pos-pricing/internal/domain/tax"
	"github.com/xenking/pos-pricing/internal/handler"
	"github.com/xenking/pos-pricing/internal/repository"
	"github.com/xenking/pos-pricing/internal/simulation"
	"github.com/xenking/pos-pricing/pkg/health"
	"github.com/xenking/pos-pricing/pkg/httpmiddleware"
)

const serviceName = "pos-pricing"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadiness(health.Check{Name: "postgres", Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	healthSvc.AddLiveness(health.Check{Name: "goroutines", Func: health.GoroutineCountCheck(10000)})

	// Sources, optionally behind the Redis cache.
	var (
		promoRepo                  = repository.NewPromotionRepository(pool)
		taxRepo                    = repository.NewTaxRepository(pool)
		promos    promotion.Source = promoRepo
		taxes     tax.Source       = taxRepo
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()

		c := cache.New(client, promoRepo, taxRepo, cfg.PromotionCacheTTL)
		promos, taxes = c, c
		healthSvc.AddReadiness(health.Check{Name: "redis", Timeout: time.Second, Func: health.PingCheck(c), Optional: true})
		lg.Info("Promotion cache enabled", zap.Duration("ttl", cfg.PromotionCacheTTL))
	}
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	// Domain services.
	rules, err := rule.NewEvaluator(lg.Named("rule"), m.MeterProvider().Meter("github.com/xenking/pos-pricing/internal/domain/rule"))
	if err != nil {
		return errors.Wrap(err, "create rule evaluator")
	}
	calc := pricing.NewCalculator(promotion.NewEngine(lg.Named("promotion"), rules), lg.Named("pricing"))
	pipeline := checkout.NewPipeline(calc)
	harness, err := simulation.NewHarness(pipeline, simulation.Options{
		Workers: cfg.Simulation.Workers,
		Logger:  lg.Named("simulation"),
		Meter:   m.MeterProvider(),
		Tracer:  m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create simulation harness")
	}

	h := handler.NewHandler(
		handler.Config{
			MaxBodyBytes: cfg.MaxBodyBytes,
			MaxScenarios: cfg.Simulation.MaxScenarios,
			MaxWorkers:   cfg.Simulation.Workers,
		},
		checkout.NewService(promos, taxes, pipeline),
		calc,
		harness,
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	healthSvc.Register(mux)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Simulation batches can take a while.
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Cost: httpmiddleware.RouteCosts(routeFinder, map[string]int{
					"POST /api/simulate": cfg.RateLimit.SimulateCost,
				}),
				Skip: httpmiddleware.SkipPaths("/livez", "/readyz"),
			}),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}
	healthSvc.SetReady(true)

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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
