package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sui-buybot/agent/database"
	"sui-buybot/agent/internal/handlers"
	"sui-buybot/agent/internal/models"
	"sui-buybot/agent/internal/services"
	"sui-buybot/shared/config"
	"sui-buybot/shared/env"
	"sui-buybot/shared/logger"
	"sui-buybot/shared/notifications"
)

func startHeartbeat(ctx context.Context, appLogger *logger.Logger) {
	go func() {
		ticker := time.NewTicker(8 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				appLogger.Info("Heartbeat: Program running...")
			case <-ctx.Done():
				return
			}
		}
	}()
}

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Fatalf("FATAL: Failed to load environment variables: %v", err)
	}
	log.Println("INFO: Environment variables loaded via shared/env.")

	cfg, err := config.LoadConfig("agent/config.yaml")
	if err != nil {
		log.Fatalf("FATAL: Failed to load agent/config.yaml: %v", err)
	}
	config.SetGlobalConfig(cfg)

	enableTelegramLogging := env.TelegramBotToken != "" && env.SystemLogChatID != 0
	appLogger, err := logger.NewLogger(logger.Config{
		Level:          cfg.Logging.Level,
		Environment:    cfg.App.Environment,
		EnableTelegram: enableTelegramLogging,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info("Application logger initialized successfully.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn, err := database.ResolveDSN()
	if err != nil {
		appLogger.Fatal("Database configuration invalid", zap.Error(err))
	}
	appLogger.Info("Connecting to database...")
	db, err := database.ConnectToDatabase(dsn)
	if err != nil {
		appLogger.Fatal("Database connection failed", zap.Error(err))
	}

	appLogger.Info("Running database migrations...")
	if err := database.MigrateDatabase(db, env.DATABASE_URL); err != nil {
		appLogger.Fatal("Database migrations failed", zap.Error(err))
	}
	appLogger.Info("Database migrations completed.")

	log.Println("INFO: Initializing Telegram notifications...")
	if err := notifications.InitTelegramBot(); err != nil {
		appLogger.Fatal("Telegram bot initialization failed", zap.Error(err))
	}
	transport, err := notifications.NewTransport()
	if err != nil {
		appLogger.Fatal("Telegram transport initialization failed", zap.Error(err))
	}

	// Pipeline wiring: ingestion -> normalizer -> dispatcher, with the
	// leaderboard fed from the same normalized stream.
	provider := services.NewSuivisionClient(appLogger)
	marketCache := services.NewMarketCache(provider, cfg.Pipeline.MarketTTL(), appLogger)

	boostStore := database.NewBoostStore(db)
	registry := services.NewBoostRegistry(boostStore, cfg.Boost.ScoreMultiplier, appLogger)
	if err := registry.Warm(ctx); err != nil {
		appLogger.Warn("Boost registry warm-up failed, starting empty", zap.Error(err))
	}

	normalizer, err := services.NewNormalizer(marketCache, cfg.Pipeline.DedupCapacity, appLogger)
	if err != nil {
		appLogger.Fatal("Normalizer initialization failed", zap.Error(err))
	}

	var feed services.FeedPublisher
	if env.RabbitMQURL != "" {
		rabbit, err := services.NewRabbitFeed(env.RabbitMQURL, env.BuyFeedQueue, appLogger)
		if err != nil {
			appLogger.Warn("Buy feed disabled, RabbitMQ unavailable", zap.Error(err))
		} else {
			defer rabbit.Close()
			feed = rabbit
		}
	}

	subscriptions := database.NewSubscriptionStore(db)
	auditor := database.NewBuyStore(db)
	dispatcher := services.NewDispatcher(subscriptions, transport, registry, auditor, feed,
		services.DispatcherOptions{
			TrendingChannel: env.TrendingChannel,
			TrendingMinUSD:  cfg.Pipeline.TrendingMinUSD,
			WorkerPoolSize:  cfg.Pipeline.WorkerPoolSize,
			MaxAttempts:     cfg.Pipeline.DeliveryMaxAttempts,
			RetryDelay:      time.Duration(cfg.Pipeline.DeliveryRetrySeconds) * time.Second,
		}, appLogger)

	leaderboard := services.NewLeaderboard(registry, transport, env.TrendingChannel,
		cfg.Pipeline.Window(), cfg.Pipeline.TopN, appLogger)
	scheduler, err := leaderboard.Start(ctx)
	if err != nil {
		appLogger.Fatal("Leaderboard scheduler failed to start", zap.Error(err))
	}

	ingestor := services.NewIngestor(env.SuiWSSURL, env.LaunchpadPackages, cfg.Pipeline.QueueCapacity, appLogger)
	buyStream := make(chan models.Buy, cfg.Pipeline.QueueCapacity)

	// Deliveries run on their own context so shutting down intake still
	// lets in-flight sends finish inside the grace period.
	deliverCtx, cancelDeliveries := context.WithCancel(context.Background())
	defer cancelDeliveries()

	appLogger.Info("Starting pipeline loops...")
	go services.Supervise(ctx, "ingestion", appLogger, ingestor.Run)
	go services.Supervise(ctx, "normalizer", appLogger, func(ctx context.Context) {
		normalizer.Run(ctx, ingestor.Events(), buyStream)
	})
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		services.Supervise(ctx, "dispatcher", appLogger, func(loopCtx context.Context) {
			dispatcher.Run(loopCtx, deliverCtx, buyStream, leaderboard)
		})
	}()

	appLogger.Info("Setting up web server...")
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	handlers.RegisterRoutes(router)
	handlers.RegisterAPIRoutes(router, &handlers.API{
		Leaderboard: leaderboard,
		Boosts:      registry,
		Verifier:    services.NewSuiPaymentVerifier(env.SuiRPCURL, appLogger),
		Transport:   transport,
		Log:         appLogger,
		BaseCtx:     ctx,
	})
	appLogger.Info("Web server and API routes registered.")

	go func() {
		serverAddr := ":" + env.Port
		appLogger.Info("Starting web server", zap.String("address", serverAddr))
		if err := router.Run(serverAddr); err != nil {
			appLogger.Fatal("Could not start web server.", zap.Error(err))
		}
	}()

	startHeartbeat(ctx, appLogger)
	appLogger.Info("Application startup complete. Waiting for events...")

	<-ctx.Done()
	appLogger.Info("Shutdown signal received, draining in-flight deliveries...")
	scheduler.Stop()

	grace := time.Duration(cfg.Pipeline.ShutdownGraceSeconds) * time.Second
	drained := make(chan struct{})
	go func() {
		<-dispatcherDone
		dispatcher.Drain()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(grace):
		appLogger.Warn("Shutdown grace period elapsed with deliveries still in flight")
	}
	cancelDeliveries()
	appLogger.Info("Shutdown complete.")
}
