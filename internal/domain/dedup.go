package domain

import "time"

// DedupEntry records the content hash of a row already committed to the
// store. Entries are shared across jobs and never deleted by the pipeline,
// so repeat submissions are caught across process restarts.
type DedupEntry struct {
	Hash        string    `gorm:"type:text;primaryKey" json:"hash"`
	BusinessKey string    `gorm:"type:text;index" json:"business_key"`
	FirstSeenAt time.Time `gorm:"autoCreateTime" json:"first_seen_at"`
}

// TableName returns the database table name for DedupEntry.
func (DedupEntry) TableName() string {
	return "dedup_entries"
}
