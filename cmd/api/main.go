package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/api"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/service"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			appLogger.WithError(err).Fatal("Failed to migrate database")
		}
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	errRepo := repository.NewRowErrorRepository(db)
	dedupRepo := repository.NewDedupRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	// Initialize raw upload retention storage (local disk or S3/R2)
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize services
	publisher := service.NewPublisher()
	notifier := service.NewNotifier(&cfg.Notify, appLogger)
	writer := service.NewBatchWriter(invoiceRepo, dedupRepo, appLogger)
	orchestrator := service.NewOrchestrator(
		jobRepo, chunkRepo, errRepo, dedupRepo,
		writer, publisher, notifier, appLogger,
	)

	uploadService, err := service.NewUploadService(
		jobRepo, chunkRepo, errRepo,
		orchestrator, publisher, objectStorage,
		filepath.Join(cfg.Storage.LocalPath, "spool"),
		service.OptionsFromConfig(&cfg.Ingest),
		appLogger,
	)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize upload service")
	}

	// Setup router
	router := api.SetupRouter(uploadService, db, &cfg.Server, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stop accepting requests first, then drain running jobs
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Jobs cancelled during shutdown")
	}

	appLogger.Info("Server exited")
}
