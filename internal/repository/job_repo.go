package repository

import (
	"context"

	"github.com/timmy/lungscan/internal/domain"
	"gorm.io/gorm"
)

// JobRepository stores batch classification runs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *domain.BatchJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves the job's progress columns.
func (r *JobRepository) Update(ctx context.Context, job *domain.BatchJob) error {
	return r.db.WithContext(ctx).Model(job).Select(
		"status", "total_items", "processed_items", "failed_items", "completed_at", "error_log",
	).Updates(job).Error
}

// Recent returns the n newest jobs.
func (r *JobRepository) Recent(ctx context.Context, n int) ([]domain.BatchJob, error) {
	var jobs []domain.BatchJob
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(n).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
