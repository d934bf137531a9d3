package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/service"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source/csvfile"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "mangalm-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	filePath := flag.String("file", "", "Path to the CSV file to ingest")
	configPath := flag.String("config", "", "Path to config file")
	chunkSize := flag.Int64("chunk-size", 0, "Rows per chunk (0 uses config default)")
	batchSize := flag.Int("batch-size", 0, "Rows per write batch (0 uses config default)")
	workers := flag.Int("workers", 0, "Worker pool size (0 uses config default)")
	dedup := flag.String("dedup", "", "Dedup policy: reject or flag (empty uses config default)")
	threshold := flag.Float64("threshold", 0, "Error rate abort threshold (0 uses config default)")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -file <path.csv> [-config path] [-chunk-size n] [-batch-size n] [-workers n] [-dedup reject|flag] [-threshold 0.2]")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	if err := repository.Migrate(db); err != nil {
		appLogger.WithError(err).Fatal("Failed to migrate database")
	}

	// Initialize repositories and services
	jobRepo := repository.NewJobRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	errRepo := repository.NewRowErrorRepository(db)
	dedupRepo := repository.NewDedupRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	publisher := service.NewPublisher()
	notifier := service.NewNotifier(&cfg.Notify, appLogger)
	writer := service.NewBatchWriter(invoiceRepo, dedupRepo, appLogger)
	orchestrator := service.NewOrchestrator(
		jobRepo, chunkRepo, errRepo, dedupRepo,
		writer, publisher, notifier, appLogger,
	)

	// Build job options from config plus flag overrides
	opts := service.OptionsFromConfig(&cfg.Ingest)
	if *chunkSize > 0 {
		opts.ChunkSize = *chunkSize
	}
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}
	if *workers > 0 {
		opts.Workers = *workers
	}
	if *threshold > 0 {
		opts.ErrorRateThreshold = *threshold
	}
	if *dedup != "" {
		policy, err := service.ParseDedupPolicy(*dedup)
		if err != nil {
			appLogger.WithError(err).Fatal("Invalid dedup policy")
		}
		opts.DedupPolicy = policy
	}

	// Count rows and create the job record
	ctx := context.Background()
	src := csvfile.NewAdapter(*filePath)
	total, err := src.CountRows(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read CSV file")
	}

	job := &domain.UploadJob{
		ID:        uuid.New().String(),
		FileName:  filepath.Base(*filePath),
		TotalRows: total,
		Status:    domain.JobStatusPending,
	}
	if err := jobRepo.Create(ctx, job); err != nil {
		appLogger.WithError(err).Fatal("Failed to create job")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldFile:  job.FileName,
		logger.FieldRows:  total,
	}).Info("Starting ingestion")

	// Subscribe before launching so no snapshot is missed
	progress, unsubscribe := publisher.Subscribe(job.ID)
	defer unsubscribe()

	if err := orchestrator.Launch(job, src, opts); err != nil {
		appLogger.WithError(err).Fatal("Failed to launch job")
	}

	// Ctrl-C cancels the job cooperatively; a second signal kills us
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		appLogger.Warn("Cancellation requested")
		if err := orchestrator.Cancel(job.ID); err != nil {
			appLogger.WithError(err).Warn("Cancel failed")
		}
		signal.Stop(sigCh)
	}()

	var final service.Snapshot
	for snap := range progress {
		final = snap
		fmt.Printf("\r%6.2f%%  processed=%d success=%d failed=%d duplicate=%d (%.0f rows/s)",
			snap.Percent, snap.ProcessedRows, snap.SuccessRows,
			snap.FailedRows, snap.DuplicateRows, snap.RowsPerSec)
		if snap.Terminal {
			break
		}
	}
	fmt.Println()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Shutdown incomplete")
	}

	appLogger.WithFields(logger.Fields{
		"status":      final.Status,
		"fail_reason": final.FailReason,
	}).Info("Ingestion finished")

	if final.Status != domain.JobStatusCompleted {
		os.Exit(1)
	}
}
