package repository

import (
	"context"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DedupRepository is the persistent backing of the deduplication index.
// Check-then-record is not atomic across callers; a hash admitted twice
// under race is tolerated, but a recorded hash is never lost.
type DedupRepository struct {
	db *gorm.DB
}

// NewDedupRepository creates a new DedupRepository.
func NewDedupRepository(db *gorm.DB) *DedupRepository {
	return &DedupRepository{db: db}
}

// Contains reports whether a content hash has been recorded.
func (r *DedupRepository) Contains(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.DedupEntry{}).
		Where("hash = ?", hash).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordBatch stores a set of content hashes in one statement.
// Inserting an already-recorded hash is a no-op, which makes concurrent
// double-records harmless.
func (r *DedupRepository) RecordBatch(ctx context.Context, entries []domain.DedupEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(entries, 500).Error
}
