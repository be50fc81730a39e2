package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"credence/workspace-portal/credentials-engine/internal/config"
	"credence/workspace-portal/credentials-engine/internal/credentials"
	"credence/workspace-portal/credentials-engine/internal/notifications"
	"credence/workspace-portal/credentials-engine/internal/workspace"
	"credence/workspace-portal/credentials-engine/pkg/chain"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load .env and configuration
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found")
	}

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Warn("Failed to load config file, using environment variables", zap.Error(err))
		cfg = config.FromEnv()
	}

	// Connect to the engine store
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := credentials.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Connect to the workspace read models
	workspaceDB, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to workspace database", zap.Error(err))
	}
	defer workspaceDB.Close()
	workspaceDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	workspaceDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// Build per-chain clients once at startup
	registry, err := chain.NewRegistry(cfg.Chains, logger)
	if err != nil {
		logger.Fatal("Failed to build chain registry", zap.Error(err))
	}

	// Notification bus
	var publisher notifications.Publisher
	if cfg.Notifications.TopicARN != "" {
		publisher, err = notifications.NewSNSPublisher(context.Background(),
			cfg.Notifications.Region, cfg.Notifications.TopicARN, logger)
		if err != nil {
			logger.Fatal("Failed to build notification publisher", zap.Error(err))
		}
	} else {
		publisher = notifications.NewLogPublisher(logger)
	}

	// Wire the engine
	reader := workspace.NewReader(workspaceDB)
	repo := credentials.NewRepository(db)
	calculator := credentials.NewCalculator(cfg.Workspace.AppURL)
	chains := credentials.NewRegistryProvider(registry)
	service := credentials.NewService(reader, repo, calculator, chains, publisher, logger)
	handler := credentials.NewHandler(service, logger)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	{
		handler.RegisterRoutes(api)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Credentials engine started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
