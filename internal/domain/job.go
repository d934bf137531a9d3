package domain

import "time"

// JobStatus represents the status of a bulk-upload job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted,
// JobStatusPartiallyCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending            JobStatus = "pending"
	JobStatusProcessing         JobStatus = "processing"
	JobStatusCompleted          JobStatus = "completed"
	JobStatusPartiallyCompleted JobStatus = "partially_completed"
	JobStatusFailed             JobStatus = "failed"
)

// Terminal reports whether the status accepts no further chunk results.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartiallyCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job failure reason codes. Empty for jobs that did not fail at job level.
const (
	FailReasonErrorRate = "error_rate_exceeded"
	FailReasonCancelled = "cancelled"
)

// UploadJob represents one bulk-upload attempt and its progress bookkeeping.
// Counters hold the invariant successful + failed + duplicate <= processed <= total.
type UploadJob struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	FileName      string     `gorm:"type:text;not null" json:"file_name"`
	StorageKey    string     `gorm:"type:text" json:"storage_key"`
	TotalRows     int64      `gorm:"default:0" json:"total_rows"`
	Status        JobStatus  `gorm:"type:text;index;default:pending" json:"status"`
	ProcessedRows int64      `gorm:"default:0" json:"processed_rows"`
	SuccessRows   int64      `gorm:"default:0" json:"success_rows"`
	FailedRows    int64      `gorm:"default:0" json:"failed_rows"`
	DuplicateRows int64      `gorm:"default:0" json:"duplicate_rows"`
	FailReason    string     `gorm:"type:text" json:"fail_reason,omitempty"`
	RowsPerSec    float64    `json:"rows_per_sec"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for UploadJob.
func (UploadJob) TableName() string {
	return "upload_jobs"
}

// PercentComplete returns processed rows as a percentage of total rows.
func (j *UploadJob) PercentComplete() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	return float64(j.ProcessedRows) / float64(j.TotalRows) * 100
}
