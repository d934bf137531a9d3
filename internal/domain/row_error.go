package domain

import "time"

// ErrorCategory classifies why a row was rejected or failed.
type ErrorCategory string

const (
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryTransform  ErrorCategory = "transform"
	ErrorCategoryDuplicate  ErrorCategory = "duplicate"
	ErrorCategoryWrite      ErrorCategory = "write"
	ErrorCategoryChunk      ErrorCategory = "chunk"
)

// RowError records one rejected or failed row for reporting. Never mutated;
// retention is capped per chunk, oldest rows kept.
type RowError struct {
	ID        uint          `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID     string        `gorm:"type:text;not null;index" json:"job_id"`
	ChunkID   string        `gorm:"type:text;index" json:"chunk_id"`
	RowNumber int64         `gorm:"not null" json:"row_number"`
	Category  ErrorCategory `gorm:"type:text;not null" json:"category"`
	Message   string        `gorm:"type:text" json:"message"`
	RawData   string        `gorm:"type:text" json:"raw_data,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// TableName returns the database table name for RowError.
func (RowError) TableName() string {
	return "upload_row_errors"
}
