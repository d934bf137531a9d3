package repository

import (
	"context"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"gorm.io/gorm"
)

// ChunkRepository handles upload chunk bookkeeping.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatch inserts the chunk plan for a job in one statement batch.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.UploadChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 500).Error
}

// UpdateStatus sets the status and attempt count of a chunk.
func (r *ChunkRepository) UpdateStatus(ctx context.Context, id string, status domain.ChunkStatus, attempts int) error {
	return r.db.WithContext(ctx).
		Model(&domain.UploadChunk{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "attempts": attempts}).Error
}

// ListByJob retrieves all chunks of a job ordered by sequence.
func (r *ChunkRepository) ListByJob(ctx context.Context, jobID string) ([]domain.UploadChunk, error) {
	var chunks []domain.UploadChunk
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("sequence ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}
