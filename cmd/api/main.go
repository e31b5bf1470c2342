package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/shift-dispatch/internal/config"
	"github.com/kursadbilgin/shift-dispatch/internal/handler"
	"github.com/kursadbilgin/shift-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/shift-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/shift-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/shift-dispatch/internal/ledger"
	"github.com/kursadbilgin/shift-dispatch/internal/observability"
	"github.com/kursadbilgin/shift-dispatch/internal/queue"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"github.com/kursadbilgin/shift-dispatch/internal/service"
	"github.com/kursadbilgin/shift-dispatch/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("api", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
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
	defer rabbit.Close()
	publisher := queue.NewRabbitMQPublisher(rabbit)

	metrics := observability.NewMetrics()

	locker, err := ledger.NewLocker(cfg.LedgerLockMode, rdb, logger)
	if err != nil {
		return err
	}
	engine, err := ledger.NewEngine(repository.NewGormCreditStore(db), locker, metrics, logger)
	if err != nil {
		return err
	}

	credits, err := service.NewCreditService(engine, repository.NewGormUserRepo(db), service.CreditConfig{
		TrialCredits:          cfg.TrialCredits,
		TrialDuration:         cfg.TrialDuration,
		SubscriptionCreditTTL: cfg.SubscriptionCreditTTL,
	}, metrics, logger)
	if err != nil {
		return err
	}

	deliveries, err := service.NewDeliveryService(repository.NewGormDeliveryRepo(db), cfg.FallbackDelay, metrics, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:      "shift-dispatch",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, map[string]handler.Checker{
		"postgres": postgresql.Pinger(db),
		"redis":    infraredis.Pinger(rdb),
		"rabbitmq": rabbit.Ping,
	})
	if err := handler.RegisterCreditRoutes(app, credits); err != nil {
		return err
	}
	if err := handler.RegisterDeliveryRoutes(app, deliveries, publisher); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("shift-dispatch api started", zap.Int("port", cfg.APIPort), zap.String("ledger_lock", cfg.LedgerLockMode))
		serveErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down api")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
