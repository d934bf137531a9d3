package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source"
)

var (
	// ErrJobNotRunning is returned when cancelling a job with no active run.
	ErrJobNotRunning = errors.New("job is not running")
	// ErrShuttingDown is returned when launching a job during shutdown.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// Orchestrator drives upload jobs end to end: it plans chunks, fans them
// out to a worker pool, folds results into the job's counters, enforces
// the error-rate circuit breaker and supports cooperative cancellation.
// One orchestrator serves all jobs of the process.
type Orchestrator struct {
	jobRepo   *repository.JobRepository
	chunkRepo *repository.ChunkRepository
	executor  *chunkExecutor
	publisher *Publisher
	notifier  *Notifier
	logger    *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewOrchestrator wires the orchestrator to its repositories, the batch
// writer and the progress publisher.
func NewOrchestrator(
	jobRepo *repository.JobRepository,
	chunkRepo *repository.ChunkRepository,
	errRepo *repository.RowErrorRepository,
	dedupRepo *repository.DedupRepository,
	writer *BatchWriter,
	publisher *Publisher,
	notifier *Notifier,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobRepo:   jobRepo,
		chunkRepo: chunkRepo,
		executor: &chunkExecutor{
			writer:    writer,
			dedupRepo: dedupRepo,
			errRepo:   errRepo,
			logger:    log,
		},
		publisher: publisher,
		notifier:  notifier,
		logger:    log,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Launch starts processing a pending job in the background. The run is
// detached from the caller's context so it outlives the submitting
// request; Cancel and Shutdown are the only ways to stop it early.
func (o *Orchestrator) Launch(job *domain.UploadJob, src source.RowSource, opts JobOptions) error {
	opts = opts.Sanitize()

	jobCtx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return ErrShuttingDown
	}
	o.cancels[job.ID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer o.release(job.ID)
		o.run(jobCtx, job, src, opts)
	}()
	return nil
}

// Cancel requests cooperative cancellation of a running job. Chunks in
// flight finish their current batch; queued chunks are never started.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cancel, ok := o.cancels[jobID]
	if !ok {
		return ErrJobNotRunning
	}
	cancel()
	return nil
}

// Running reports whether the job has an active run.
func (o *Orchestrator) Running(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.cancels[jobID]
	return ok
}

// Shutdown refuses new launches and waits for running jobs to drain.
// When the context expires first, remaining jobs are cancelled and their
// terminal state is still persisted before Shutdown returns.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.mu.Lock()
		for _, cancel := range o.cancels {
			cancel()
		}
		o.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[jobID]; ok {
		cancel()
		delete(o.cancels, jobID)
	}
}

// run executes one job to its terminal state. Repository writes use a
// detached context so bookkeeping survives job cancellation.
func (o *Orchestrator) run(ctx context.Context, job *domain.UploadJob, src source.RowSource, opts JobOptions) {
	persistCtx := context.Background()
	log := o.logger.WithFields(logger.Fields{
		logger.FieldComponent: "orchestrator",
		logger.FieldJobID:     job.ID,
	})

	started := time.Now()
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &started
	if err := o.jobRepo.Save(persistCtx, job); err != nil {
		log.WithError(err).Error("Failed to mark job processing")
	}
	o.publisher.Publish(SnapshotFromJob(job))

	log.WithFields(logger.Fields{
		logger.FieldRows: job.TotalRows,
		"chunk_size":     opts.ChunkSize,
		"workers":        opts.Workers,
		"dedup_policy":   opts.DedupPolicy,
	}).Info("Starting upload job")

	chunks, err := PlanChunks(job.ID, job.TotalRows, opts.ChunkSize)
	if err != nil {
		job.FailReason = err.Error()
		job.Status = domain.JobStatusFailed
		o.finalizeTerminal(persistCtx, job, started)
		return
	}
	if err := o.chunkRepo.CreateBatch(persistCtx, chunks); err != nil {
		log.WithError(err).Error("Failed to persist chunk plan")
		job.FailReason = "chunk plan not persisted"
		job.Status = domain.JobStatusFailed
		o.finalizeTerminal(persistCtx, job, started)
		return
	}

	chunkCh := make(chan domain.UploadChunk)
	resultCh := make(chan chunkResult, opts.Workers)

	var workers sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			o.executor.runWorker(ctx, id, src, opts, chunkCh, resultCh)
		}(i)
	}

	// tripped flips once the breaker condition holds; the dispatcher
	// stops handing out chunks while in-flight chunks run to completion.
	var tripped atomic.Bool

	go func() {
		defer close(chunkCh)
		for _, chunk := range chunks {
			if tripped.Load() {
				return
			}
			if err := o.chunkRepo.UpdateStatus(persistCtx, chunk.ID, domain.ChunkStatusProcessing, 0); err != nil {
				log.WithError(err).Warn("Failed to mark chunk processing")
			}
			select {
			case chunkCh <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		workers.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		job.ProcessedRows += res.processed
		job.SuccessRows += res.success
		job.FailedRows += res.failed
		job.DuplicateRows += res.duplicate
		if elapsed := time.Since(started).Seconds(); elapsed > 0 {
			job.RowsPerSec = float64(job.ProcessedRows) / elapsed
		}

		chunkStatus := domain.ChunkStatusCompleted
		if res.chunkFailed || res.err != nil {
			chunkStatus = domain.ChunkStatusFailed
		}
		if err := o.chunkRepo.UpdateStatus(persistCtx, res.chunk.ID, chunkStatus, res.attempts); err != nil {
			log.WithError(err).Warn("Failed to update chunk status")
		}
		if err := o.jobRepo.Save(persistCtx, job); err != nil {
			log.WithError(err).Warn("Failed to persist job progress")
		}
		o.publisher.Publish(SnapshotFromJob(job))

		// Circuit breaker: failed rows over processed rows, duplicates
		// count toward neither side. A minimum sample keeps a bad first
		// batch from condemning the whole file.
		if !tripped.Load() && job.ProcessedRows >= opts.MinErrorSample {
			ratio := float64(job.FailedRows) / float64(job.ProcessedRows)
			if ratio > opts.ErrorRateThreshold {
				tripped.Store(true)
				log.WithFields(logger.Fields{
					"error_rate": ratio,
					"threshold":  opts.ErrorRateThreshold,
				}).Warn("Error rate threshold exceeded, aborting job")
			}
		}
	}

	o.finalize(persistCtx, job, started, ctx.Err() != nil, tripped.Load())
}

// finalize decides the terminal status from the drained counters.
func (o *Orchestrator) finalize(persistCtx context.Context, job *domain.UploadJob, started time.Time, cancelled, tripped bool) {
	switch {
	case cancelled:
		job.Status = domain.JobStatusFailed
		job.FailReason = domain.FailReasonCancelled
	case tripped:
		job.Status = domain.JobStatusFailed
		job.FailReason = domain.FailReasonErrorRate
	case job.FailedRows == 0 && job.ProcessedRows == job.TotalRows:
		job.Status = domain.JobStatusCompleted
	default:
		job.Status = domain.JobStatusPartiallyCompleted
	}
	o.finalizeTerminal(persistCtx, job, started)
}

func (o *Orchestrator) finalizeTerminal(persistCtx context.Context, job *domain.UploadJob, started time.Time) {
	now := time.Now()
	job.CompletedAt = &now
	if elapsed := now.Sub(started).Seconds(); elapsed > 0 {
		job.RowsPerSec = float64(job.ProcessedRows) / elapsed
	}

	if err := o.jobRepo.Save(persistCtx, job); err != nil {
		o.logger.WithField(logger.FieldJobID, job.ID).WithError(err).Error("Failed to persist terminal job state")
	}

	snap := SnapshotFromJob(job)
	o.publisher.Publish(snap)
	if o.notifier != nil {
		o.notifier.NotifyTerminal(persistCtx, snap)
	}

	logger.With(logger.Fields{
		logger.FieldJobID: job.ID,
		"status":          job.Status,
		"fail_reason":     job.FailReason,
		"success_rows":    job.SuccessRows,
		"failed_rows":     job.FailedRows,
		"duplicate_rows":  job.DuplicateRows,
	}).WithThroughput(job.RowsPerSec).Info(persistCtx, "Upload job finished")
}
