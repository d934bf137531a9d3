package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/source/csvfile"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{
		Level:       "error",
		Format:      "text",
		Output:      io.Discard,
		ServiceName: "test",
	})
}

// testStack wires the pipeline against a throwaway SQLite database.
type testStack struct {
	db        *gorm.DB
	jobs      *repository.JobRepository
	chunks    *repository.ChunkRepository
	rowErrs   *repository.RowErrorRepository
	dedup     *repository.DedupRepository
	invoices  *repository.InvoiceRepository
	writer    *BatchWriter
	publisher *Publisher
	orch      *Orchestrator
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := testLogger()
	s := &testStack{
		db:        db,
		jobs:      repository.NewJobRepository(db),
		chunks:    repository.NewChunkRepository(db),
		rowErrs:   repository.NewRowErrorRepository(db),
		dedup:     repository.NewDedupRepository(db),
		invoices:  repository.NewInvoiceRepository(db),
		publisher: NewPublisher(),
	}
	s.writer = NewBatchWriter(s.invoices, s.dedup, log)
	s.orch = NewOrchestrator(s.jobs, s.chunks, s.rowErrs, s.dedup, s.writer, s.publisher, NewNotifier(nil, log), log)
	return s
}

// testOptions returns small, fast tuning for pipeline tests.
func testOptions() JobOptions {
	return JobOptions{
		ChunkSize:          100,
		BatchSize:          10,
		Workers:            4,
		ErrorRateThreshold: 0.20,
		MinErrorSample:     100,
		RetryCount:         1,
		RetryBackoff:       time.Millisecond,
		ChunkTimeout:       10 * time.Second,
		MaxRowErrors:       1000,
	}.Sanitize()
}

// invoiceCSV writes a CSV in the standard export format. rowFor returns
// the quantity value of each row; distinct invoice numbers keep natural
// keys unique.
func invoiceCSV(t *testing.T, rows int, qtyFor func(i int) string) string {
	t.Helper()
	content := "Invoice No,Invoice Date,Store Name,Item Name,Quantity,Item Price,Total\n"
	for i := 0; i < rows; i++ {
		content += fmt.Sprintf("INV-%04d,15/03/2024,Fresh Mart,Rice 5kg,%s,10.00,\n", i, qtyFor(i))
	}
	path := filepath.Join(t.TempDir(), "upload.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func allValid(i int) string { return "2" }

// runJob drives one file through the pipeline and returns the reloaded
// terminal job record.
func runJob(t *testing.T, s *testStack, path string, opts JobOptions) *domain.UploadJob {
	t.Helper()
	return runJobWithSource(t, s, csvfile.NewAdapter(path), opts)
}

// runJobWithSource is runJob over an arbitrary row source.
func runJobWithSource(t *testing.T, s *testStack, src source.RowSource, opts JobOptions) *domain.UploadJob {
	t.Helper()
	ctx := context.Background()

	total, err := src.CountRows(ctx)
	if err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}

	job := &domain.UploadJob{
		ID:        uuid.New().String(),
		FileName:  "upload.csv",
		TotalRows: total,
		Status:    domain.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	progress, unsubscribe := s.publisher.Subscribe(job.ID)
	defer unsubscribe()

	if err := s.orch.Launch(job, src, opts); err != nil {
		t.Fatalf("failed to launch job: %v", err)
	}
	waitTerminal(t, progress)

	reloaded, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	return reloaded
}

func waitTerminal(t *testing.T, progress <-chan Snapshot) Snapshot {
	t.Helper()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case snap, ok := <-progress:
			if !ok {
				t.Fatal("progress stream closed without a terminal snapshot")
			}
			if snap.Terminal {
				return snap
			}
		case <-deadline:
			t.Fatal("job did not reach a terminal state in time")
		}
	}
}

// checkCounters asserts the cross-counter invariant every snapshot and
// terminal job must satisfy.
func checkCounters(t *testing.T, job *domain.UploadJob) {
	t.Helper()
	if got := job.SuccessRows + job.FailedRows + job.DuplicateRows; got != job.ProcessedRows {
		t.Errorf("success %d + failed %d + duplicate %d = %d, want processed %d",
			job.SuccessRows, job.FailedRows, job.DuplicateRows, got, job.ProcessedRows)
	}
	if job.ProcessedRows > job.TotalRows {
		t.Errorf("processed %d exceeds total %d", job.ProcessedRows, job.TotalRows)
	}
}
