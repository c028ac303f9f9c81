package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/cache"
	"github.com/fekuna/omnipos-inventory-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/metrics"
	"github.com/fekuna/omnipos-inventory-service/pkg/search"

	alertRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/alert/repository"
	alertUCPkg "github.com/fekuna/omnipos-inventory-service/internal/alert/usecase"

	batchRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/batch/repository"
	batchUCPkg "github.com/fekuna/omnipos-inventory-service/internal/batch/usecase"

	resListenerPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/listener"
	resRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/repository"
	resUCPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/usecase"

	transferListenerPkg "github.com/fekuna/omnipos-inventory-service/internal/transfer/listener"
	transferRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/transfer/repository"
	transferUCPkg "github.com/fekuna/omnipos-inventory-service/internal/transfer/usecase"

	outboxPkg "github.com/fekuna/omnipos-inventory-service/internal/outbox"
	outboxRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/outbox/repository"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     false,
		DisableStacktrace: false,
	}

	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. Initialize Kafka
	orderConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrdersTopic,
		GroupID: cfg.Kafka.OrdersGroupID,
	})
	defer orderConsumer.Close()

	transferConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.TransfersTopic,
		GroupID: cfg.Kafka.TransfersGroupID,
	})
	defer transferConsumer.Close()

	kafkaProducer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.EventsTopic,
	})
	defer kafkaProducer.Close()
	appLogger.Info("Connected to Kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("orders_topic", cfg.Kafka.OrdersTopic),
		zap.String("events_topic", cfg.Kafka.EventsTopic),
	)

	// 6. Initialize Elasticsearch
	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch (Search features might be limited)", zap.Error(err))
		esClient = nil
	} else {
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	// 7. Initialize Repositories
	batchRepo := batchRepoPkg.NewPGRepository(db)
	resRepo := resRepoPkg.NewPGRepository(db)
	transferRepo := transferRepoPkg.NewPGRepository(db)
	alertRepo := alertRepoPkg.NewPGRepository(db)
	outboxRepo := outboxRepoPkg.NewPGRepository(db)

	// 8. Initialize UseCases. The alert evaluator comes first; the mutation
	// usecases call into it after each commit.
	alertUC := alertUCPkg.NewAlertUseCase(alertRepo, batchRepo, esClient, &cfg.Inventory, appLogger)
	ledgerUC := batchUCPkg.NewLedgerUseCase(batchRepo, redisClient, redisClient, alertUC, &cfg.Inventory, appLogger)
	resUC := resUCPkg.NewReservationUseCase(resRepo, redisClient, redisClient, alertUC, &cfg.Inventory, appLogger)
	transferUC := transferUCPkg.NewTransferUseCase(transferRepo, redisClient, redisClient, alertUC, &cfg.Inventory, appLogger)

	// 9. Initialize Listeners and Outbox Relay
	orderListener := resListenerPkg.NewOrderListener(orderConsumer, resUC, appLogger)
	transferListener := transferListenerPkg.NewTransferListener(transferConsumer, transferUC, appLogger)
	relay := outboxPkg.NewRelay(outboxRepo, kafkaProducer, &cfg.Inventory, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orderListener.Start(ctx)
	go transferListener.Start(ctx)
	go relay.Run(ctx)

	// 10. Background Sweeps
	go runSweep(ctx, time.Duration(cfg.Inventory.ExpirySweepInterval)*time.Second, func() {
		marked, err := ledgerUC.SweepExpired(ctx)
		if err != nil {
			appLogger.Error("Expiry sweep failed", zap.Error(err))
			return
		}
		if marked > 0 {
			appLogger.Info("Expiry sweep finished", zap.Int("marked", marked))
		}
	})
	go runSweep(ctx, time.Duration(cfg.Inventory.AlertSweepInterval)*time.Second, func() {
		if _, err := alertUC.SweepResolved(ctx); err != nil {
			appLogger.Error("Alert retention sweep failed", zap.Error(err))
		}
	})

	// 11. Metrics Server
	metricsServer := &http.Server{
		Addr:    cfg.Server.MetricsPort,
		Handler: metrics.Handler(),
	}
	go func() {
		appLogger.Info("Starting metrics server", zap.String("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Worker stopped")
}

func runSweep(ctx context.Context, interval time.Duration, sweep func()) {
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
			sweep()
		}
	}
}
