package repository

import (
	"context"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"gorm.io/gorm"
)

// RowErrorRepository handles row processing error records.
type RowErrorRepository struct {
	db *gorm.DB
}

// NewRowErrorRepository creates a new RowErrorRepository.
func NewRowErrorRepository(db *gorm.DB) *RowErrorRepository {
	return &RowErrorRepository{db: db}
}

// CreateBatch inserts a batch of row errors.
func (r *RowErrorRepository) CreateBatch(ctx context.Context, errs []domain.RowError) error {
	if len(errs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(errs, 500).Error
}

// ListByJob retrieves row errors for a job ordered by row number.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job ID.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.RowError: matching error records.
//   - error: non-nil if the query fails.
func (r *RowErrorRepository) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.RowError, error) {
	var errs []domain.RowError
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("row_number ASC").
		Limit(limit).
		Offset(offset).
		Find(&errs).Error; err != nil {
		return nil, err
	}
	return errs, nil
}

// CountByJob counts row errors recorded for a job.
func (r *RowErrorRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.RowError{}).
		Where("job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
