// Dispatcher drains the outbox to Kafka. Requires DATABASE_URL and
// KAFKA_BROKERS; OUTBOX_TOPIC, OUTBOX_TICK_INTERVAL, OUTBOX_BATCH_SIZE and
// OUTBOX_MAX_ATTEMPTS tune the loop.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"session-plane/backend/internal/config"
	"session-plane/backend/internal/db"
	"session-plane/backend/internal/outbox/dispatcher"
	"session-plane/backend/internal/outbox/publisher"
	"session-plane/backend/internal/storage/postgres"
	"session-plane/backend/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otel.NewProviders(ctx, cfg.OTELExporterEndpoint, "session-plane-dispatcher", false)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer sqlDB.Close()

	pub, err := publisher.NewKafka(brokers, cfg.OutboxTopic)
	if err != nil {
		logger.Fatal("kafka", zap.Error(err))
	}
	defer func() { _ = pub.Close() }()

	d := dispatcher.New(postgres.New(sqlDB), pub, dispatcher.Config{
		Interval:       cfg.TickInterval(),
		BatchSize:      cfg.OutboxBatchSize,
		MaxAttempts:    cfg.OutboxMaxAttempts,
		PublishTimeout: cfg.PublishTimeout(),
	}, logger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("dispatcher: shutting down")
		cancel()
	}()

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("dispatcher", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
