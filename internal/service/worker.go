package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/schema"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source"
)

// chunkResult is one chunk's outcome reported back to the orchestrator.
// Counter invariant: success + failed + duplicate == processed.
type chunkResult struct {
	chunk       domain.UploadChunk
	attempts    int
	processed   int64
	success     int64
	failed      int64
	duplicate   int64
	errors      []domain.RowError
	chunkFailed bool  // every retry attempt failed; counters cover the whole range
	err         error // attempt aborted (cancellation); counters are partial
}

// addError appends a row error up to the per-chunk retention cap. Rows
// beyond the cap are still counted, just not retained.
func (r *chunkResult) addError(maxErrors int, e domain.RowError) {
	if len(r.errors) < maxErrors {
		r.errors = append(r.errors, e)
	}
}

// chunkExecutor streams one chunk's rows through the row pipeline:
// validate, transform, dedup-check, accumulate, flush. One executor is
// shared by all pool workers; it holds no per-chunk state.
type chunkExecutor struct {
	writer    *BatchWriter
	dedupRepo *repository.DedupRepository
	errRepo   *repository.RowErrorRepository
	logger    *logger.Logger
}

// runWorker consumes chunks until the channel closes or the job context
// is cancelled. Each result is pushed to the orchestrator's collector.
func (e *chunkExecutor) runWorker(ctx context.Context, workerID int, src source.RowSource, opts JobOptions, chunks <-chan domain.UploadChunk, results chan<- chunkResult) {
	log := e.logger.WithField(logger.FieldWorker, workerID)
	for chunk := range chunks {
		if ctx.Err() != nil {
			return
		}

		res := e.executeWithRetry(ctx, workerID, src, opts, chunk)

		if len(res.errors) > 0 {
			if err := e.errRepo.CreateBatch(ctx, res.errors); err != nil {
				log.WithFields(logger.Fields{
					logger.FieldJobID:   chunk.JobID,
					logger.FieldChunkID: chunk.ID,
				}).WithError(err).Warn("Failed to persist row errors")
			}
		}

		results <- res
	}
}

// executeWithRetry runs a chunk attempt under its timeout and retries
// chunk-level failures with exponential backoff. When every attempt
// fails the chunk is reported fully failed: its row range becomes one
// error block.
func (e *chunkExecutor) executeWithRetry(ctx context.Context, workerID int, src source.RowSource, opts JobOptions, chunk domain.UploadChunk) chunkResult {
	log := e.logger.WithFields(logger.Fields{
		logger.FieldWorker:  workerID,
		logger.FieldJobID:   chunk.JobID,
		logger.FieldChunkID: chunk.ID,
	})

	var res chunkResult
	var lastErr error
	for attempt := 1; attempt <= opts.RetryCount; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, opts.ChunkTimeout)
		res = e.execute(attemptCtx, src, opts, chunk)
		cancel()
		res.chunk = chunk
		res.attempts = attempt

		if res.err == nil {
			return res
		}
		if ctx.Err() != nil {
			// Job cancelled or shutting down; report the partial result.
			return res
		}

		lastErr = res.err
		log.WithError(res.err).Warnf("Chunk attempt %d/%d failed, retrying", attempt, opts.RetryCount)
		select {
		case <-time.After(opts.RetryBackoff << (attempt - 1)):
		case <-ctx.Done():
			return res
		}
	}

	// Retries exhausted. Rows committed by partial attempts stay
	// committed (writes are idempotent); the chunk itself is reported as
	// a fully-failed block so the job's counters stay accountable.
	failed := chunkResult{
		chunk:       chunk,
		attempts:    opts.RetryCount,
		processed:   chunk.RowCount,
		failed:      chunk.RowCount,
		chunkFailed: true,
	}
	failed.addError(opts.MaxRowErrors, domain.RowError{
		JobID:     chunk.JobID,
		ChunkID:   chunk.ID,
		RowNumber: chunk.StartRow,
		Category:  domain.ErrorCategoryChunk,
		Message:   fmt.Sprintf("rows %d-%d failed after %d attempts: %v", chunk.StartRow, chunk.EndRow-1, opts.RetryCount, lastErr),
	})
	return failed
}

// execute processes the chunk's row range strictly sequentially so every
// error attributes to an exact row number. Cancellation is observed
// between batch flushes; an in-flight flush always completes.
func (e *chunkExecutor) execute(ctx context.Context, src source.RowSource, opts JobOptions, chunk domain.UploadChunk) chunkResult {
	var res chunkResult

	it, err := src.OpenRange(ctx, chunk.StartRow, chunk.EndRow)
	if err != nil {
		res.err = fmt.Errorf("failed to open chunk range: %w", err)
		return res
	}
	defer it.Close()

	seen := make(map[string]bool) // intra-chunk duplicate hashes
	batch := make([]pendingRow, 0, opts.BatchSize)

	flush := func() error {
		fr, err := e.writer.Flush(ctx, chunk.JobID, chunk.ID, batch)
		if err != nil {
			return err
		}
		res.processed += int64(len(batch))
		res.success += fr.Success
		res.duplicate += fr.Duplicate
		res.failed += fr.Failed
		for _, re := range fr.Errors {
			res.addError(opts.MaxRowErrors, re)
		}
		batch = batch[:0]
		return nil
	}

	for {
		row, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			res.err = err
			return res
		}

		rec := opts.Rules.MapRecord(row.Fields)

		if verr := schema.Validate(rec, opts.Rules); verr != nil {
			res.processed++
			res.failed++
			res.addError(opts.MaxRowErrors, rowError(chunk, row, domain.ErrorCategoryValidation, verr.Error()))
			continue
		}

		canonical, terr := schema.Transform(rec, opts.Rules)
		if terr != nil {
			// Should not happen for validator-approved rows; recovered
			// like a validation failure under its own category.
			res.processed++
			res.failed++
			res.addError(opts.MaxRowErrors, rowError(chunk, row, domain.ErrorCategoryTransform, terr.Error()))
			continue
		}

		hash := canonical.Hash()
		isDup := seen[hash]
		if !isDup {
			contains, derr := e.dedupRepo.Contains(ctx, hash)
			if derr != nil {
				res.err = fmt.Errorf("dedup lookup failed: %w", derr)
				return res
			}
			isDup = contains
		}
		seen[hash] = true

		if isDup && opts.DedupPolicy == DedupReject {
			res.processed++
			res.duplicate++
			res.addError(opts.MaxRowErrors, rowError(chunk, row, domain.ErrorCategoryDuplicate, "row content already ingested"))
			continue
		}

		batch = append(batch, pendingRow{rowNumber: row.Number, row: canonical, duplicate: isDup})
		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				res.err = err
				return res
			}
			if err := ctx.Err(); err != nil {
				res.err = err
				return res
			}
		}
	}

	if err := flush(); err != nil {
		res.err = err
		return res
	}
	return res
}

// rowError builds a row error with a snapshot of the raw source fields.
func rowError(chunk domain.UploadChunk, row source.Row, category domain.ErrorCategory, message string) domain.RowError {
	raw, _ := json.Marshal(row.Fields)
	return domain.RowError{
		JobID:     chunk.JobID,
		ChunkID:   chunk.ID,
		RowNumber: row.Number,
		Category:  category,
		Message:   message,
		RawData:   string(raw),
	}
}
