package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/api"
	"escrow/apps/escrow/internal/chain"
	"escrow/apps/escrow/internal/config"
	"escrow/apps/escrow/internal/event_publisher"
	"escrow/apps/escrow/internal/index"
	"escrow/apps/escrow/internal/prefs"
	"escrow/apps/escrow/internal/prices"
	"escrow/apps/escrow/internal/repository"
	"escrow/apps/escrow/internal/txwatcher"
)

func main() {
	// Initialize zap logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Load configuration from environment variables
	cfg := config.NewConfig()

	logger.Info("Starting application with configuration",
		zap.String("rpc_url", cfg.RpcURL),
		zap.String("escrows_data_url", cfg.EscrowsDataURL),
		zap.String("tokens_data_url", cfg.TokensDataURL),
		zap.String("factory_address", cfg.FactoryAddress),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("watch_interval", cfg.WatchInterval),
		zap.Int("api_port", cfg.APIPort),
	)

	// Connect to database
	db, err := sql.Open("postgres", cfg.DbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Initialize database tables
	if err := repository.InitMigration(db); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	preferenceRepository := repository.NewPreferenceRepository(db, logger)
	transactionRepository := repository.NewTransactionRepository(db, logger)

	// Preference stores persist through the database-backed key-value layer
	starredStore := prefs.NewStarredStore(preferenceRepository, logger)
	nameStore := prefs.NewNameStore(preferenceRepository, logger)
	recentStore := prefs.NewRecentStore(preferenceRepository, logger)

	// Optional Redis price cache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid Redis URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	} else {
		logger.Info("Redis not configured, price caching disabled")
	}

	// Optional Kafka event publisher
	var eventPublisher *event_publisher.EventPublisher
	if cfg.KafkaBroker != "" {
		eventPublisher, err = event_publisher.NewEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal("Failed to create event publisher", zap.Error(err))
		}
		defer eventPublisher.Close()
	} else {
		logger.Info("Kafka not configured, event publishing disabled")
	}

	// Chain reader
	reader, err := chain.NewReader(cfg.RpcURL, cfg.BatchSize, logger)
	if err != nil {
		logger.Fatal("Failed to create chain reader", zap.Error(err))
	}

	// Static index and price feed clients
	indexClient := index.NewClient(cfg.EscrowsDataURL, cfg.TokensDataURL, logger)
	priceClient := prices.NewClient(cfg.PriceAPIURL, redisClient, logger)

	// Transaction builder
	builder, err := api.NewTransactionBuilder(reader.Client(), cfg.FactoryAddress, logger)
	if err != nil {
		logger.Fatal("Failed to create transaction builder", zap.Error(err))
	}

	// Handlers
	escrowHandler := api.NewEscrowHandler(indexClient, reader, priceClient, reader, nameStore, starredStore, recentStore, logger)
	priceHandler := api.NewPriceHandler(priceClient, logger)
	preferenceHandler := api.NewPreferenceHandler(starredStore, nameStore, recentStore, logger)
	transactionHandler := api.NewTransactionHandler(builder, indexClient, reader, reader, transactionRepository, eventPublisher, logger)
	infoHandler := api.NewInfoHandler(cfg.FactoryAddress, logger)

	// Receipt watcher drives submitted transactions to confirmed/failed
	watcherCtx, cancelWatcher := context.WithCancel(context.Background())
	defer cancelWatcher()

	watcher := txwatcher.NewWatcher(reader.Client(), transactionRepository, eventPublisher, time.Duration(cfg.WatchInterval)*time.Second, logger)
	go watcher.Run(watcherCtx)

	// Create and start API server
	apiServer := api.NewServer(cfg.APIPort, escrowHandler, priceHandler, preferenceHandler, transactionHandler, infoHandler, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	cancelWatcher()

	// Create a context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown API server gracefully
	if err := apiServer.Stop(ctx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	logger.Info("Application shutdown complete")
}
