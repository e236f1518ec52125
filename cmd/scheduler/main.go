package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_webhook_backend/internal/analytics"
	"clinic_webhook_backend/internal/events"
	"clinic_webhook_backend/internal/leads"
	"clinic_webhook_backend/internal/marketing"
	"clinic_webhook_backend/internal/scheduler"
	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/internal/wassenger"
	"clinic_webhook_backend/platform/config"
	"clinic_webhook_backend/platform/db"
	"clinic_webhook_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	// LEAD analytics are recorded where the lead is tracked.
	analytics.NewService(analytics.NewRepository(pool), cfg.GetAnalyticsLocation(), log).RegisterHandlers(eventBus)

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	resolver := tenants.NewResolver(tenants.NewRepository(pool), log)
	tracker := leads.NewTracker(
		resolver,
		marketing.NewClient(cfg, cfg.GetDefaultPhoneRegion(), log),
		wassenger.NewClient(cfg, log),
		leads.NewRedisClaimStore(redisClient, cfg.GetLeadClaimTTL()),
		eventBus,
		nil,
		log,
	)

	worker, err := scheduler.NewWorker(cfg, tracker, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eventBus.Wait(waitCtx); err != nil {
		log.Warn("event handlers still running at exit", "error", err)
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
