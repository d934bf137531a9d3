package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source/csvfile"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/storage"
)

var (
	// ErrJobNotFound is returned when no job exists with the given ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when acting on an already-terminal job.
	ErrJobFinished = errors.New("job already finished")
)

// UploadService is the application entry point for bulk uploads. It
// spools the incoming file to disk, retains a raw copy in object
// storage, counts rows, creates the job record and hands the job to the
// orchestrator.
type UploadService struct {
	jobRepo      *repository.JobRepository
	chunkRepo    *repository.ChunkRepository
	errRepo      *repository.RowErrorRepository
	orchestrator *Orchestrator
	publisher    *Publisher
	store        storage.ObjectStorage
	spoolDir     string
	defaults     JobOptions
	logger       *logger.Logger
}

// NewUploadService wires the upload service.
func NewUploadService(
	jobRepo *repository.JobRepository,
	chunkRepo *repository.ChunkRepository,
	errRepo *repository.RowErrorRepository,
	orchestrator *Orchestrator,
	publisher *Publisher,
	store storage.ObjectStorage,
	spoolDir string,
	defaults JobOptions,
	log *logger.Logger,
) (*UploadService, error) {
	if spoolDir == "" {
		spoolDir = filepath.Join(os.TempDir(), "upload-spool")
	}
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &UploadService{
		jobRepo:      jobRepo,
		chunkRepo:    chunkRepo,
		errRepo:      errRepo,
		orchestrator: orchestrator,
		publisher:    publisher,
		store:        store,
		spoolDir:     spoolDir,
		defaults:     defaults.Sanitize(),
		logger:       log,
	}, nil
}

// Defaults returns the service's configured default job options.
func (s *UploadService) Defaults() JobOptions {
	return s.defaults
}

// Submit accepts a CSV stream, creates its job and starts processing in
// the background. The returned job is in the pending state; progress is
// observable immediately through Status and Subscribe.
func (s *UploadService) Submit(ctx context.Context, fileName string, r io.Reader, opts JobOptions) (*domain.UploadJob, error) {
	opts = opts.Sanitize()
	jobID := uuid.New().String()
	log := s.logger.WithFields(logger.Fields{
		logger.FieldJobID: jobID,
		logger.FieldFile:  fileName,
	})

	spoolPath, size, err := s.spool(jobID, r)
	if err != nil {
		return nil, err
	}

	src := csvfile.NewAdapter(spoolPath)
	total, err := src.CountRows(ctx)
	if err != nil {
		os.Remove(spoolPath)
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	if total == 0 {
		os.Remove(spoolPath)
		return nil, fmt.Errorf("%w: file contains no data rows", ErrInvalidJob)
	}

	storageKey := s.retain(ctx, jobID, fileName, spoolPath, size, log)

	job := &domain.UploadJob{
		ID:         jobID,
		FileName:   fileName,
		StorageKey: storageKey,
		TotalRows:  total,
		Status:     domain.JobStatusPending,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		os.Remove(spoolPath)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.orchestrator.Launch(job, src, opts); err != nil {
		os.Remove(spoolPath)
		return nil, err
	}
	go s.cleanupOnTerminal(jobID, spoolPath)

	log.WithFields(logger.Fields{logger.FieldRows: total}).Info("Upload accepted")
	return job, nil
}

// spool copies the request body to a job-private file so chunk workers
// can read row ranges independently of the HTTP connection.
func (s *UploadService) spool(jobID string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.spoolDir, jobID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to spool upload: %w", err)
	}
	return path, size, nil
}

// retain uploads the raw file to object storage. Retention is
// best-effort: a storage outage must not block ingestion.
func (s *UploadService) retain(ctx context.Context, jobID, fileName, spoolPath string, size int64, log *logger.Logger) string {
	f, err := os.Open(spoolPath)
	if err != nil {
		log.WithError(err).Warn("Failed to reopen spool file for retention")
		return ""
	}
	defer f.Close()

	key := fmt.Sprintf("uploads/%s/%s", jobID, filepath.Base(fileName))
	if err := s.store.Upload(ctx, key, f, size, "text/csv"); err != nil {
		log.WithError(err).Warn("Failed to retain raw upload")
		return ""
	}
	return key
}

// cleanupOnTerminal removes the spool file and releases the job's
// progress stream once the job reaches a terminal state. The retained
// storage copy remains available; late subscribers fall back to a
// snapshot built from the persisted record.
func (s *UploadService) cleanupOnTerminal(jobID, spoolPath string) {
	ch, cancel := s.publisher.Subscribe(jobID)
	defer cancel()
	for snap := range ch {
		if snap.Terminal {
			break
		}
	}
	if err := os.Remove(spoolPath); err != nil && !os.IsNotExist(err) {
		s.logger.WithField(logger.FieldJobID, jobID).WithError(err).Warn("Failed to remove spool file")
	}
	s.publisher.Forget(jobID)
}

// Status returns a job's persisted state.
func (s *UploadService) Status(ctx context.Context, jobID string) (*domain.UploadJob, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns jobs newest first.
func (s *UploadService) List(ctx context.Context, limit, offset int) ([]domain.UploadJob, error) {
	return s.jobRepo.List(ctx, limit, offset)
}

// Chunks returns a job's chunk records in sequence order.
func (s *UploadService) Chunks(ctx context.Context, jobID string) ([]domain.UploadChunk, error) {
	if _, err := s.Status(ctx, jobID); err != nil {
		return nil, err
	}
	return s.chunkRepo.ListByJob(ctx, jobID)
}

// Errors returns a page of the job's row errors plus the total count.
func (s *UploadService) Errors(ctx context.Context, jobID string, limit, offset int) ([]domain.RowError, int64, error) {
	if _, err := s.Status(ctx, jobID); err != nil {
		return nil, 0, err
	}
	errs, err := s.errRepo.ListByJob(ctx, jobID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.errRepo.CountByJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	return errs, total, nil
}

// Cancel requests cancellation of a running job.
func (s *UploadService) Cancel(ctx context.Context, jobID string) error {
	job, err := s.Status(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobFinished
	}
	if err := s.orchestrator.Cancel(jobID); err != nil {
		if errors.Is(err, ErrJobNotRunning) {
			// Submitted but the run already released, or another node's
			// job; the persisted state is authoritative.
			return ErrJobFinished
		}
		return err
	}
	return nil
}

// Subscribe attaches to a job's progress stream. For jobs with no
// published snapshot yet, a synthetic snapshot is built from the
// persisted record so subscribers always receive an initial state.
func (s *UploadService) Subscribe(ctx context.Context, jobID string) (<-chan Snapshot, func(), error) {
	job, err := s.Status(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	if _, ok := s.publisher.Last(jobID); !ok && job.Status.Terminal() {
		// Finished before this process published anything (e.g. after a
		// restart). Replay the terminal state once.
		ch := make(chan Snapshot, 1)
		snap := SnapshotFromJob(job)
		snap.Seq = 1
		snap.Timestamp = time.Now()
		ch <- snap
		close(ch)
		return ch, func() {}, nil
	}

	ch, cancel := s.publisher.Subscribe(jobID)
	return ch, cancel, nil
}
