package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/shift-dispatch/internal/config"
	"github.com/kursadbilgin/shift-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/shift-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/shift-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/shift-dispatch/internal/ledger"
	"github.com/kursadbilgin/shift-dispatch/internal/observability"
	"github.com/kursadbilgin/shift-dispatch/internal/provider"
	"github.com/kursadbilgin/shift-dispatch/internal/queue"
	"github.com/kursadbilgin/shift-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"github.com/kursadbilgin/shift-dispatch/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const receiptPrefetch = 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	consumer := queue.NewRabbitMQConsumer(rabbit, receiptPrefetch, logger)
	defer consumer.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, map[string]int{
		ratelimit.KeySMS: cfg.RateLimitPerSec,
	})
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	gateway, err := provider.NewHTTPGateway(cfg.SMSProviderURL, cfg.SMSProviderTimeout)
	if err != nil {
		return fmt.Errorf("sms gateway initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()

	locker, err := ledger.NewLocker(cfg.LedgerLockMode, rdb, logger)
	if err != nil {
		return err
	}
	engine, err := ledger.NewEngine(repository.NewGormCreditStore(db), locker, metrics, logger)
	if err != nil {
		return err
	}

	users := repository.NewGormUserRepo(db)
	credits, err := service.NewCreditService(engine, users, service.CreditConfig{
		TrialCredits:          cfg.TrialCredits,
		TrialDuration:         cfg.TrialDuration,
		SubscriptionCreditTTL: cfg.SubscriptionCreditTTL,
	}, metrics, logger)
	if err != nil {
		return err
	}

	deliveryRepo := repository.NewGormDeliveryRepo(db)
	deliveries, err := service.NewDeliveryService(deliveryRepo, cfg.FallbackDelay, metrics, logger)
	if err != nil {
		return err
	}

	scheduler, err := service.NewFallbackScheduler(service.FallbackDependencies{
		Deliveries:  deliveryRepo,
		Jobs:        repository.NewGormJobRepo(db),
		Contacts:    repository.NewGormContactRepo(db),
		Templates:   repository.NewGormTemplateRepo(db),
		Messages:    repository.NewGormMessageRepo(db),
		MessageLogs: repository.NewGormMessageLogRepo(db),
		Credits:     credits,
		SMS:         gateway,
		RateLimiter: limiter,
		Metrics:     metrics,
		Logger:      logger,
	}, service.FallbackConfig{
		Interval:     cfg.FallbackScanInterval,
		Limit:        cfg.FallbackScanLimit,
		Concurrency:  cfg.FallbackConcurrency,
		MaxAttempts:  cfg.FallbackMaxAttempts,
		RetryBackoff: cfg.FallbackRetryBackoff,
		CycleTimeout: cfg.FallbackCycleTimeout,
		FromNumber:   cfg.SMSFromNumber,
	})
	if err != nil {
		return err
	}

	logger.Info("shift-dispatch worker started",
		zap.Duration("scan_interval", cfg.FallbackScanInterval),
		zap.Int("concurrency", cfg.FallbackConcurrency),
		zap.String("ledger_lock", cfg.LedgerLockMode),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		return deliveries.ConsumeReceipts(gctx, consumer)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
