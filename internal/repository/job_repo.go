package repository

import (
	"context"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles upload job bookkeeping.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new upload job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.UploadJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Save persists the current state of an upload job.
func (r *JobRepository) Save(ctx context.Context, job *domain.UploadJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves an upload job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.UploadJob: job record if found.
//   - error: non-nil if lookup fails.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.UploadJob, error) {
	var job domain.UploadJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List retrieves upload jobs newest first with pagination.
func (r *JobRepository) List(ctx context.Context, limit, offset int) ([]domain.UploadJob, error) {
	var jobs []domain.UploadJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountByStatus counts upload jobs by status.
func (r *JobRepository) CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.UploadJob{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
