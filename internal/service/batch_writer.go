package service

import (
	"context"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/schema"
)

// pendingRow is one transformed row accumulated toward the next batch
// flush. duplicate marks rows admitted under the flag dedup policy.
type pendingRow struct {
	rowNumber int64
	row       *schema.CanonicalRow
	duplicate bool
}

// FlushResult aggregates the outcome of one batch flush.
type FlushResult struct {
	Success   int64
	Duplicate int64
	Failed    int64
	Errors    []domain.RowError
}

// BatchWriter flushes bounded batches of canonical rows to the
// destination store and records their hashes in the deduplication index
// after commit. The transactional heavy lifting, including the per-row
// savepoint fallback, lives in the invoice repository.
type BatchWriter struct {
	invoiceRepo *repository.InvoiceRepository
	dedupRepo   *repository.DedupRepository
	logger      *logger.Logger
}

// NewBatchWriter creates a batch writer over the given repositories.
func NewBatchWriter(invoiceRepo *repository.InvoiceRepository, dedupRepo *repository.DedupRepository, log *logger.Logger) *BatchWriter {
	return &BatchWriter{
		invoiceRepo: invoiceRepo,
		dedupRepo:   dedupRepo,
		logger:      log,
	}
}

// Flush upserts one batch. Row-level write failures come back as
// RowErrors inside the result; a non-nil error means the store rejected
// the batch wholesale (chunk-level, retryable).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job ID, for error attribution.
//   - chunkID: owning chunk ID, for error attribution.
//   - batch: rows to write, in chunk order.
// Returns:
//   - FlushResult: per-row outcome counts and recorded errors.
//   - error: non-nil only for whole-batch store failure.
func (w *BatchWriter) Flush(ctx context.Context, jobID, chunkID string, batch []pendingRow) (FlushResult, error) {
	var res FlushResult
	if len(batch) == 0 {
		return res, nil
	}

	lines := make([]domain.InvoiceLine, len(batch))
	for i, pr := range batch {
		lines[i] = pr.row.ToInvoiceLine(pr.duplicate)
	}

	written, failures, err := w.invoiceRepo.UpsertBatch(ctx, lines)
	if err != nil {
		return res, err
	}

	failedIdx := make(map[int]error, len(failures))
	for _, f := range failures {
		failedIdx[f.Index] = f.Err
	}

	entries := make([]domain.DedupEntry, 0, written)
	for i, pr := range batch {
		if ferr, ok := failedIdx[i]; ok {
			res.Failed++
			res.Errors = append(res.Errors, domain.RowError{
				JobID:     jobID,
				ChunkID:   chunkID,
				RowNumber: pr.rowNumber,
				Category:  domain.ErrorCategoryWrite,
				Message:   ferr.Error(),
			})
			continue
		}
		if pr.duplicate {
			res.Duplicate++
		} else {
			res.Success++
		}
		entries = append(entries, domain.DedupEntry{
			Hash:        pr.row.Hash(),
			BusinessKey: pr.row.BusinessKey(),
		})
	}

	// Dedup entries are recorded only for committed rows. A failure here
	// weakens future duplicate detection but does not fail the rows.
	if err := w.dedupRepo.RecordBatch(ctx, entries); err != nil {
		w.logger.WithFields(logger.Fields{
			logger.FieldJobID:   jobID,
			logger.FieldChunkID: chunkID,
		}).WithError(err).Warn("Failed to record dedup entries")
	}

	return res, nil
}
