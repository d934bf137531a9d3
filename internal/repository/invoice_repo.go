package repository

import (
	"context"
	"fmt"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RowFailure identifies one row of a batch that could not be written,
// by its index within the batch.
type RowFailure struct {
	Index int
	Err   error
}

// InvoiceRepository writes canonical rows to the destination store.
type InvoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// invoiceUpsert resolves conflicts on the natural key so re-delivered
// rows update in place instead of duplicating.
func invoiceUpsert() clause.Expression {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "invoice_no"}, {Name: "product_name"}},
		UpdateAll: true,
	}
}

// UpsertBatch writes a bounded batch of invoice lines in one transaction.
// If the whole-batch upsert fails, each row is retried individually under
// its own savepoint inside a second transaction: good rows commit, bad
// rows roll back to their savepoint and come back as RowFailures. One
// malformed row therefore never discards the rest of the batch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - lines: batch of invoice lines to upsert.
// Returns:
//   - int: number of rows written.
//   - []RowFailure: rows that failed the per-row retry.
//   - error: non-nil only when the store is unusable for the whole batch.
func (r *InvoiceRepository) UpsertBatch(ctx context.Context, lines []domain.InvoiceLine) (int, []RowFailure, error) {
	if len(lines) == 0 {
		return 0, nil, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(invoiceUpsert()).Create(&lines).Error
	})
	if err == nil {
		return len(lines), nil, nil
	}

	// The batch is poisoned by at least one row. Retry row by row under
	// savepoints so the good rows still land.
	var (
		written  int
		failures []RowFailure
	)
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range lines {
			lines[i].ID = 0 // discard any ID assigned during the rolled-back attempt
			sp := fmt.Sprintf("row_%d", i)
			if err := tx.SavePoint(sp).Error; err != nil {
				return fmt.Errorf("failed to create savepoint: %w", err)
			}
			if err := tx.Clauses(invoiceUpsert()).Create(&lines[i]).Error; err != nil {
				if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
					return fmt.Errorf("failed to roll back to savepoint: %w", rbErr)
				}
				failures = append(failures, RowFailure{Index: i, Err: err})
				continue
			}
			written++
		}
		return nil
	})
	if txErr != nil {
		return 0, nil, txErr
	}
	return written, failures, nil
}

// CountLines counts rows currently in the destination table.
func (r *InvoiceRepository) CountLines(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.InvoiceLine{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetByNaturalKey retrieves one invoice line by its natural key.
func (r *InvoiceRepository) GetByNaturalKey(ctx context.Context, invoiceNo, productName string) (*domain.InvoiceLine, error) {
	var line domain.InvoiceLine
	if err := r.db.WithContext(ctx).
		First(&line, "invoice_no = ? AND product_name = ?", invoiceNo, productName).Error; err != nil {
		return nil, err
	}
	return &line, nil
}
