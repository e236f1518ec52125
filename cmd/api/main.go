package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_webhook_backend/internal/analytics"
	"clinic_webhook_backend/internal/events"
	apphttp "clinic_webhook_backend/internal/http"
	"clinic_webhook_backend/internal/http/router"
	"clinic_webhook_backend/internal/leads"
	"clinic_webhook_backend/internal/marketing"
	"clinic_webhook_backend/internal/scheduler"
	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/internal/wassenger"
	"clinic_webhook_backend/internal/webhook"
	"clinic_webhook_backend/platform/config"
	"clinic_webhook_backend/platform/db"
	"clinic_webhook_backend/platform/logger"
	"clinic_webhook_backend/platform/metrics"
	"clinic_webhook_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout     = 15 * time.Second
	inProcessJobTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	resolver := tenants.NewResolver(tenants.NewRepository(pool), log)
	wassengerClient := wassenger.NewClient(cfg, log)
	capiClient := marketing.NewClient(cfg, cfg.GetDefaultPhoneRegion(), log)

	claims, dispatcherFor, closeQueue := initLeadQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}
	leadTracker := leads.NewTracker(resolver, capiClient, wassengerClient, claims, eventBus, appMetrics, log)
	leadService := leads.NewService(claims, dispatcherFor(leadTracker), appMetrics, log)
	wassenger.NewHandoffLabeler(resolver, wassengerClient, log).RegisterHandlers(eventBus)

	analyticsModule := analytics.NewModule(analytics.NewRepository(pool), cfg.GetAnalyticsLocation(), eventBus, val, log)
	webhookModule := webhook.NewModule(cfg, cfg.GetDefaultPhoneRegion(), resolver, leadService, eventBus, appMetrics, log)
	appMetrics.RegisterPendingGauge(registry, webhookModule.Pending)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		Metrics:  appMetrics.Handler(),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			analyticsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown incomplete", "error", err)
		}
		if err := webhookModule.Drain(shutdownCtx); err != nil {
			log.Warn("pending conversations not fully drained", "error", err)
		}
		if err := leadService.Wait(shutdownCtx); err != nil {
			log.Warn("lead dispatches still running at exit", "error", err)
		}
		if err := eventBus.Wait(shutdownCtx); err != nil {
			log.Warn("event handlers still running at exit", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
	log.Info("server stopped")
}

// initLeadQueue picks the lead claim store and dispatcher: Redis and the
// asynq queue when REDIS_URL is set, process memory and goroutines otherwise.
func initLeadQueue(cfg *config.Config, log *logger.Logger) (leads.ClaimStore, func(*leads.Tracker) leads.Dispatcher, func()) {
	inProcess := func(t *leads.Tracker) leads.Dispatcher {
		return leads.NewAsyncDispatcher(t, inProcessJobTimeout)
	}

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; lead tracking runs in-process")
		return leads.NewMemoryClaimStore(cfg.GetLeadClaimTTL()), inProcess, nil
	}

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		return leads.NewMemoryClaimStore(cfg.GetLeadClaimTTL()), inProcess, nil
	}

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize lead queue client", "error", err)
		_ = redisClient.Close()
		return leads.NewMemoryClaimStore(cfg.GetLeadClaimTTL()), inProcess, nil
	}

	claims := leads.NewRedisClaimStore(redisClient, cfg.GetLeadClaimTTL())
	return claims, func(*leads.Tracker) leads.Dispatcher { return queueClient }, func() {
		_ = queueClient.Close()
		_ = redisClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
