package domain

import "time"

// ChunkStatus represents the status of one chunk of an upload job.
type ChunkStatus string

const (
	ChunkStatusPending    ChunkStatus = "pending"
	ChunkStatusProcessing ChunkStatus = "processing"
	ChunkStatusCompleted  ChunkStatus = "completed"
	ChunkStatusFailed     ChunkStatus = "failed"
)

// UploadChunk is a contiguous row range of one upload job, the unit of
// parallel work assignment. Ranges of a job partition [0, total_rows):
// StartRow is inclusive, EndRow exclusive.
type UploadChunk struct {
	ID        string      `gorm:"type:text;primaryKey" json:"id"`
	JobID     string      `gorm:"type:text;not null;index" json:"job_id"`
	Sequence  int         `gorm:"not null" json:"sequence"`
	StartRow  int64       `gorm:"not null" json:"start_row"`
	EndRow    int64       `gorm:"not null" json:"end_row"`
	RowCount  int64       `gorm:"not null" json:"row_count"`
	Status    ChunkStatus `gorm:"type:text;index;default:pending" json:"status"`
	Attempts  int         `gorm:"default:0" json:"attempts"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name for UploadChunk.
func (UploadChunk) TableName() string {
	return "upload_chunks"
}
