package domain

import "time"

// JobStatus represents the status of a batch classification job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// BatchJob records one batch classification run and its progress.
type BatchJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	SourceID       string     `gorm:"type:text;not null;index" json:"source_id"`
	Status         JobStatus  `gorm:"type:text;not null" json:"status"`
	TotalItems     int64      `gorm:"not null;default:0" json:"total_items"`
	ProcessedItems int64      `gorm:"not null;default:0" json:"processed_items"`
	FailedItems    int64      `gorm:"not null;default:0" json:"failed_items"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorLog       string     `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for BatchJob.
func (BatchJob) TableName() string {
	return "batch_jobs"
}
