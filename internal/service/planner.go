package service

import (
	"errors"
	"fmt"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/google/uuid"
)

// ErrInvalidJob indicates a job whose row count or chunk size makes
// planning impossible.
var ErrInvalidJob = errors.New("invalid job")

// PlanChunks splits a job's row count into fixed-size, non-overlapping
// chunks covering exactly [0, totalRows). The last chunk may be shorter
// than chunkSize.
// Parameters:
//   - jobID: owning job ID.
//   - totalRows: number of data rows in the source file.
//   - chunkSize: rows per chunk.
// Returns:
//   - []domain.UploadChunk: ordered chunk plan.
//   - error: ErrInvalidJob when totalRows or chunkSize is not positive.
func PlanChunks(jobID string, totalRows, chunkSize int64) ([]domain.UploadChunk, error) {
	if totalRows <= 0 {
		return nil, fmt.Errorf("%w: total row count %d", ErrInvalidJob, totalRows)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidJob, chunkSize)
	}

	count := (totalRows + chunkSize - 1) / chunkSize
	chunks := make([]domain.UploadChunk, 0, count)
	for seq := int64(0); seq < count; seq++ {
		start := seq * chunkSize
		end := start + chunkSize
		if end > totalRows {
			end = totalRows
		}
		chunks = append(chunks, domain.UploadChunk{
			ID:       uuid.New().String(),
			JobID:    jobID,
			Sequence: int(seq),
			StartRow: start,
			EndRow:   end,
			RowCount: end - start,
			Status:   domain.ChunkStatusPending,
		})
	}
	return chunks, nil
}
