package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/test-access-service/internal/cache"
	"github.com/SAP-F-2025/test-access-service/internal/config"
	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/handlers"
	"github.com/SAP-F-2025/test-access-service/internal/jobs"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/test-access-service/internal/repositories/memory"
	"github.com/SAP-F-2025/test-access-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
	"github.com/SAP-F-2025/test-access-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
			redisClient = nil
		}
	}
	cacheManager := cache.NewCacheManager(redisClient)

	// User directory
	var users repositories.UserRepository
	if cfg.Casdoor.Enabled() {
		users = casdoor.NewUserCasdoor(casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		}, cacheManager)
	} else {
		logger.Warn("Casdoor is not configured; using an empty in-memory user directory")
		users = memory.NewUserDirectory()
	}

	// Initialize repositories
	repoManager, err := newRepositoryManager(cfg, redisClient, users)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Event publisher
	publisher, err := newEventPublisher(cfg, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}

	// Initialize services
	serviceManager := services.NewServiceManager(services.ServiceDependencies{
		Repo:      repoManager.GetRepository(),
		Cache:     cacheManager,
		Publisher: publisher,
		Logger:    slogLogger,
		Validator: validator.New(),
		Clock:     services.SystemClock{},
	}, services.ServiceManagerConfig{
		WindowDefaultBound: cfg.WindowDefaultBound,
		ImportSessionTTL:   cfg.ImportSessionTTL,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Background jobs
	sweeper := jobs.NewImportSweeper(serviceManager.Imports(), cfg.ImportSweepSchedule, slogLogger)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start import sweeper: %v", err)
	}

	// Initialize handlers
	authMiddleware := handlers.NewCasdoorAuthMiddleware(cfg.Casdoor, users)
	handlerManager := handlers.NewHandlerManager(serviceManager, logger, authMiddleware, users)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", cfg.StorageDriver,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	sweeper.Stop(ctx)

	// Closes the publisher and the repository (database and Redis for postgres)
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	if cfg.StorageDriver == config.StorageMemory && redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}

func newRepositoryManager(cfg *config.Config, redisClient *redis.Client, users repositories.UserRepository) (repositories.RepositoryManager, error) {
	if cfg.StorageDriver == config.StorageMemory {
		return memory.NewRepositoryManager(users), nil
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		Users:       users,
	}), nil
}

// newEventPublisher publishes to Kafka when brokers are configured and to an
// in-process channel otherwise
func newEventPublisher(cfg *config.Config, logger *slog.Logger) (events.EventPublisher, error) {
	var publisher message.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, err
		}
		publisher = kafkaPublisher
	} else {
		logger.Warn("KAFKA_BROKERS not set; events stay in process")
		publisher = events.NewGoChannelPubSub(logger)
	}
	return events.NewWatermillEventPublisher(publisher, cfg.EventsTopicPrefix, logger), nil
}
