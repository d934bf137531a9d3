package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source/csvfile"
)

func TestOrchestratorCompletesJob(t *testing.T) {
	s := newTestStack(t)
	path := invoiceCSV(t, 500, allValid)

	job := runJob(t, s, path, testOptions())

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s (%s), want completed", job.Status, job.FailReason)
	}
	if job.ProcessedRows != 500 || job.SuccessRows != 500 {
		t.Errorf("processed=%d success=%d, want 500/500", job.ProcessedRows, job.SuccessRows)
	}
	checkCounters(t, job)

	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Error("terminal job must carry started and completed timestamps")
	}
	if job.RowsPerSec <= 0 {
		t.Errorf("rows per second = %v, want > 0", job.RowsPerSec)
	}

	count, err := s.invoices.CountLines(context.Background())
	if err != nil {
		t.Fatalf("CountLines returned error: %v", err)
	}
	if count != 500 {
		t.Errorf("store holds %d lines, want 500", count)
	}

	chunks, err := s.chunks.ListByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ListByJob returned error: %v", err)
	}
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}
	for _, c := range chunks {
		if c.Status != domain.ChunkStatusCompleted {
			t.Errorf("chunk %d status = %s, want completed", c.Sequence, c.Status)
		}
	}
}

func TestOrchestratorPartialCompletion(t *testing.T) {
	s := newTestStack(t)
	// Rows 100 through 150 fail validation (negative quantity). With a
	// single worker the chunks resolve in order, so the running failure
	// ratio peaks at 51/200 and stays under the 30% threshold.
	path := invoiceCSV(t, 500, func(i int) string {
		if i >= 100 && i <= 150 {
			return "-1"
		}
		return "2"
	})

	opts := testOptions()
	opts.Workers = 1
	opts.ErrorRateThreshold = 0.30
	job := runJob(t, s, path, opts)

	if job.Status != domain.JobStatusPartiallyCompleted {
		t.Fatalf("status = %s (%s), want partially_completed", job.Status, job.FailReason)
	}
	if job.FailedRows != 51 {
		t.Errorf("failed = %d, want 51", job.FailedRows)
	}
	if job.SuccessRows != 449 {
		t.Errorf("success = %d, want 449", job.SuccessRows)
	}
	if job.ProcessedRows != 500 {
		t.Errorf("processed = %d, want 500", job.ProcessedRows)
	}
	checkCounters(t, job)

	// Every failed row is recorded with its exact row number.
	total, err := s.rowErrs.CountByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("CountByJob returned error: %v", err)
	}
	if total != 51 {
		t.Errorf("recorded %d row errors, want 51", total)
	}
	errs, err := s.rowErrs.ListByJob(context.Background(), job.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByJob returned error: %v", err)
	}
	if len(errs) == 0 {
		t.Fatal("expected row errors")
	}
	if errs[0].RowNumber != 100 {
		t.Errorf("first error at row %d, want 100", errs[0].RowNumber)
	}
	if errs[0].Category != domain.ErrorCategoryValidation {
		t.Errorf("error category = %q, want validation", errs[0].Category)
	}
	if errs[0].RawData == "" {
		t.Error("row error carries no raw data snapshot")
	}
}

func TestOrchestratorCircuitBreaker(t *testing.T) {
	s := newTestStack(t)
	// A third of the file is broken; whatever order chunks land in, the
	// failure ratio ends far above the 20% threshold.
	path := invoiceCSV(t, 300, func(i int) string {
		if i < 100 {
			return "not-a-number"
		}
		return "2"
	})

	job := runJob(t, s, path, testOptions())

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.FailReason != domain.FailReasonErrorRate {
		t.Errorf("fail reason = %q, want %q", job.FailReason, domain.FailReasonErrorRate)
	}
	checkCounters(t, job)
}

func TestOrchestratorBreakerRespectsMinimumSample(t *testing.T) {
	s := newTestStack(t)
	// 10 rows, all broken: 100% failure rate, but under the 100-row
	// minimum sample the breaker must not trip.
	path := invoiceCSV(t, 10, func(i int) string { return "-1" })

	job := runJob(t, s, path, testOptions())

	if job.Status != domain.JobStatusPartiallyCompleted {
		t.Fatalf("status = %s (%s), want partially_completed", job.Status, job.FailReason)
	}
	if job.FailedRows != 10 || job.ProcessedRows != 10 {
		t.Errorf("failed=%d processed=%d, want 10/10", job.FailedRows, job.ProcessedRows)
	}
	checkCounters(t, job)
}

func TestOrchestratorCancel(t *testing.T) {
	s := newTestStack(t)
	path := invoiceCSV(t, 5000, allValid)
	ctx := context.Background()

	src := csvfile.NewAdapter(path)
	total, err := src.CountRows(ctx)
	if err != nil {
		t.Fatalf("CountRows returned error: %v", err)
	}
	job := &domain.UploadJob{
		ID:        uuid.New().String(),
		FileName:  "upload.csv",
		TotalRows: total,
		Status:    domain.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	progress, unsubscribe := s.publisher.Subscribe(job.ID)
	defer unsubscribe()

	opts := testOptions()
	opts.Workers = 2
	if err := s.orch.Launch(job, src, opts); err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	if err := s.orch.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	final := waitTerminal(t, progress)
	if final.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.FailReason != domain.FailReasonCancelled {
		t.Errorf("fail reason = %q, want %q", final.FailReason, domain.FailReasonCancelled)
	}

	reloaded, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	checkCounters(t, reloaded)

	// Cancelling a finished job reports it as not running.
	if err := s.orch.Cancel(job.ID); err == nil {
		t.Error("cancelling a finished job should fail")
	}
}

func TestOrchestratorRejectsDuplicateResubmission(t *testing.T) {
	s := newTestStack(t)
	path := invoiceCSV(t, 200, allValid)

	first := runJob(t, s, path, testOptions())
	if first.Status != domain.JobStatusCompleted || first.SuccessRows != 200 {
		t.Fatalf("first pass: status=%s success=%d", first.Status, first.SuccessRows)
	}

	second := runJob(t, s, path, testOptions())
	if second.Status != domain.JobStatusCompleted {
		t.Fatalf("second pass status = %s (%s), want completed", second.Status, second.FailReason)
	}
	if second.DuplicateRows != 200 || second.SuccessRows != 0 {
		t.Errorf("second pass duplicate=%d success=%d, want 200/0", second.DuplicateRows, second.SuccessRows)
	}
	checkCounters(t, second)

	// The second pass must not grow the store.
	count, err := s.invoices.CountLines(context.Background())
	if err != nil {
		t.Fatalf("CountLines returned error: %v", err)
	}
	if count != 200 {
		t.Errorf("store holds %d lines after re-submission, want 200", count)
	}
}

func TestOrchestratorFlagsDuplicates(t *testing.T) {
	s := newTestStack(t)
	path := invoiceCSV(t, 50, allValid)

	first := runJob(t, s, path, testOptions())
	if first.Status != domain.JobStatusCompleted {
		t.Fatalf("first pass status = %s", first.Status)
	}

	opts := testOptions()
	opts.DedupPolicy = DedupFlag
	second := runJob(t, s, path, opts)

	if second.Status != domain.JobStatusCompleted {
		t.Fatalf("second pass status = %s (%s), want completed", second.Status, second.FailReason)
	}
	if second.DuplicateRows != 50 {
		t.Errorf("duplicate = %d, want 50", second.DuplicateRows)
	}
	checkCounters(t, second)

	// Flagged duplicates are written with their marker; the natural-key
	// upsert keeps the store at one line per key.
	ctx := context.Background()
	count, err := s.invoices.CountLines(ctx)
	if err != nil {
		t.Fatalf("CountLines returned error: %v", err)
	}
	if count != 50 {
		t.Errorf("store holds %d lines, want 50", count)
	}
	line, err := s.invoices.GetByNaturalKey(ctx, "INV-0000", "Rice 5kg")
	if err != nil {
		t.Fatalf("GetByNaturalKey returned error: %v", err)
	}
	if !line.Duplicate {
		t.Error("re-written line lost its duplicate marker")
	}
}

func TestOrchestratorZeroRowJobFails(t *testing.T) {
	s := newTestStack(t)
	path := invoiceCSV(t, 0, allValid)

	job := runJob(t, s, path, testOptions())

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.FailReason, "invalid job") {
		t.Errorf("fail reason = %q, want invalid job", job.FailReason)
	}
	if job.ProcessedRows != 0 || job.TotalRows != 0 {
		t.Errorf("counters = %+v, want all zero", job)
	}
}

// brokenSource fails every range open, like a spool file that vanished
// mid-job.
type brokenSource struct {
	rows int64
}

func (s *brokenSource) CountRows(ctx context.Context) (int64, error) { return s.rows, nil }

func (s *brokenSource) OpenRange(ctx context.Context, start, end int64) (source.RowIterator, error) {
	return nil, errors.New("read spool: input/output error")
}

// stalledSource opens ranges whose iterator never yields a row until
// the attempt context expires.
type stalledSource struct {
	rows int64
}

func (s *stalledSource) CountRows(ctx context.Context) (int64, error) { return s.rows, nil }

func (s *stalledSource) OpenRange(ctx context.Context, start, end int64) (source.RowIterator, error) {
	return &stalledIterator{ctx: ctx}, nil
}

type stalledIterator struct {
	ctx context.Context
}

func (it *stalledIterator) Next() (source.Row, error) {
	<-it.ctx.Done()
	return source.Row{}, it.ctx.Err()
}

func (it *stalledIterator) Close() error { return nil }

func TestOrchestratorChunkFailureAfterRetries(t *testing.T) {
	s := newTestStack(t)
	opts := testOptions()
	opts.ChunkSize = 1000
	opts.RetryCount = 3
	opts.RetryBackoff = time.Millisecond

	job := runJobWithSource(t, s, &brokenSource{rows: 250}, opts)

	if job.Status != domain.JobStatusFailed || job.FailReason != domain.FailReasonErrorRate {
		t.Fatalf("status = %s (%s), want failed/%s", job.Status, job.FailReason, domain.FailReasonErrorRate)
	}
	if job.ProcessedRows != 250 || job.FailedRows != 250 {
		t.Errorf("processed=%d failed=%d, want 250/250", job.ProcessedRows, job.FailedRows)
	}
	if job.SuccessRows != 0 || job.DuplicateRows != 0 {
		t.Errorf("success=%d duplicate=%d, want 0/0", job.SuccessRows, job.DuplicateRows)
	}
	checkCounters(t, job)

	ctx := context.Background()
	errs, err := s.rowErrs.ListByJob(ctx, job.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByJob returned error: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("recorded %d errors, want 1 block for the failed chunk", len(errs))
	}
	if errs[0].Category != domain.ErrorCategoryChunk {
		t.Errorf("category = %s, want %s", errs[0].Category, domain.ErrorCategoryChunk)
	}
	if errs[0].RowNumber != 0 {
		t.Errorf("error block starts at row %d, want 0", errs[0].RowNumber)
	}
	if !strings.Contains(errs[0].Message, "after 3 attempts") {
		t.Errorf("message = %q, want exhausted attempt count", errs[0].Message)
	}

	chunks, err := s.chunks.ListByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListByJob returned error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("planned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Status != domain.ChunkStatusFailed {
		t.Errorf("chunk status = %s, want failed", chunks[0].Status)
	}
	if chunks[0].Attempts != 3 {
		t.Errorf("chunk attempts = %d, want 3", chunks[0].Attempts)
	}
}

func TestOrchestratorChunkTimeout(t *testing.T) {
	s := newTestStack(t)
	opts := testOptions()
	opts.ChunkSize = 1000
	opts.RetryCount = 2
	opts.RetryBackoff = time.Millisecond
	opts.ChunkTimeout = 50 * time.Millisecond

	// 40 rows stays under the breaker's minimum sample, so the timed-out
	// chunk surfaces as a partial completion rather than a breaker trip.
	job := runJobWithSource(t, s, &stalledSource{rows: 40}, opts)

	if job.Status != domain.JobStatusPartiallyCompleted {
		t.Fatalf("status = %s (%s), want partially_completed", job.Status, job.FailReason)
	}
	if job.ProcessedRows != 40 || job.FailedRows != 40 {
		t.Errorf("processed=%d failed=%d, want 40/40", job.ProcessedRows, job.FailedRows)
	}
	checkCounters(t, job)

	ctx := context.Background()
	errs, err := s.rowErrs.ListByJob(ctx, job.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByJob returned error: %v", err)
	}
	if len(errs) != 1 || errs[0].Category != domain.ErrorCategoryChunk {
		t.Fatalf("errors = %+v, want one chunk-category block", errs)
	}
	if !strings.Contains(errs[0].Message, "context deadline exceeded") {
		t.Errorf("message = %q, want attempt timeout as the cause", errs[0].Message)
	}

	chunks, err := s.chunks.ListByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListByJob returned error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Attempts != 2 {
		t.Fatalf("chunks = %+v, want one chunk with 2 attempts", chunks)
	}
}

func TestOrchestratorShutdownDrains(t *testing.T) {
	s := newTestStack(t)
	path := invoiceCSV(t, 200, allValid)

	src := csvfile.NewAdapter(path)
	ctx := context.Background()
	total, err := src.CountRows(ctx)
	if err != nil {
		t.Fatalf("CountRows returned error: %v", err)
	}
	job := &domain.UploadJob{ID: uuid.New().String(), FileName: "upload.csv", TotalRows: total, Status: domain.JobStatusPending}
	if err := s.jobs.Create(ctx, job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := s.orch.Launch(job, src, testOptions()); err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.orch.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	// The drained job ran to completion, and new launches are refused.
	reloaded, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if reloaded.Status != domain.JobStatusCompleted {
		t.Errorf("drained job status = %s, want completed", reloaded.Status)
	}
	if err := s.orch.Launch(job, src, testOptions()); err != ErrShuttingDown {
		t.Errorf("Launch after shutdown = %v, want ErrShuttingDown", err)
	}
}
