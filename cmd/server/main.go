package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/config"
	"github.com/BadrRibzat/bookgen-ai/internal/generation"
	"github.com/BadrRibzat/bookgen-ai/internal/handler"
	"github.com/BadrRibzat/bookgen-ai/internal/importer"
	"github.com/BadrRibzat/bookgen-ai/internal/registry"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
	"github.com/BadrRibzat/bookgen-ai/internal/runtime"
	"github.com/BadrRibzat/bookgen-ai/internal/trainer"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting BookGen LLM Service...")

	// Load configuration
	configPath := os.Getenv("BOOKGEN_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Create data directories if not exist
	os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755)
	os.MkdirAll(cfg.Models.Dir, 0755)

	// Initialize database
	db, err := openDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	exampleRepo := repository.NewExampleRepository(db, logger)
	jobRepo := repository.NewJobRepository(db, logger)
	artifactRepo := repository.NewArtifactRepository(db, logger)

	// Initialize model runtime
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize model runtime", zap.Error(err))
	}

	// Initialize services
	imp := importer.NewImporter(exampleRepo, logger)
	tr := trainer.NewTrainer(jobRepo, exampleRepo, artifactRepo, rt, cfg.Models.Dir, logger)
	reg := registry.NewRegistry(artifactRepo, cfg.Models.DefaultPath, logger)

	gen, err := generation.NewService(reg, rt, cfg.Generation.CacheSize, logger)
	if err != nil {
		logger.Fatal("Failed to initialize generation service", zap.Error(err))
	}
	defer gen.Close()

	// Initialize HTTP handler
	apiHandler := handler.NewHandler(imp, tr, reg, gen, exampleRepo, logger)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register routes
	apiHandler.RegisterRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("BookGen LLM Service is running",
		zap.String("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Type),
		zap.String("runtime", cfg.Runtime.Type))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func openDatabase(cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	switch cfg.Database.Type {
	case "postgres":
		db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		repository.MigrateDB(db, logger)
		return db, nil
	default:
		return repository.NewSQLiteDB(cfg.Database.Path, logger)
	}
}

func buildRuntime(cfg *config.Config, logger *zap.Logger) (runtime.Runtime, error) {
	switch cfg.Runtime.Type {
	case "gemini":
		if cfg.Runtime.GeminiAPIKey == "" || cfg.Runtime.GeminiAPIKey == "YOUR_API_KEY_HERE" {
			return nil, fmt.Errorf("gemini runtime selected but no API key configured")
		}
		return runtime.NewGeminiRuntime(context.Background(), cfg.Runtime.GeminiAPIKey, cfg.Runtime.GeminiModel, logger)
	default:
		pollInterval := time.Duration(cfg.Runtime.PollIntervalSeconds) * time.Second
		return runtime.NewHTTPRuntime(cfg.Runtime.URL, pollInterval, logger), nil
	}
}
