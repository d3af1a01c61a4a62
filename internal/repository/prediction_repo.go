package repository

import (
	"context"
	"errors"

	"github.com/timmy/lungscan/internal/domain"
	"gorm.io/gorm"
)

// PredictionRepository stores immutable prediction records.
type PredictionRepository struct {
	db *gorm.DB
}

// NewPredictionRepository creates a new PredictionRepository.
func NewPredictionRepository(db *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Create inserts a new prediction record.
func (r *PredictionRepository) Create(ctx context.Context, p *domain.PredictionResult) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID retrieves a prediction by its ID. A missing record returns (nil, nil).
func (r *PredictionRepository) GetByID(ctx context.Context, id string) (*domain.PredictionResult, error) {
	var p domain.PredictionResult
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// List returns predictions newest-first. Callers are responsible for clamping limit.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: optional email filter.
//   - skip: number of records to skip.
//   - limit: maximum number of records to return.
//
// Returns:
//   - []domain.PredictionResult: matching predictions.
//   - error: non-nil if the query fails.
func (r *PredictionRepository) List(ctx context.Context, filter domain.PredictionFilter, skip, limit int) ([]domain.PredictionResult, error) {
	var predictions []domain.PredictionResult
	query := r.db.WithContext(ctx)
	if filter.UserEmail != "" {
		query = query.Where("user_email = ?", filter.UserEmail)
	}
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&predictions).Error; err != nil {
		return nil, err
	}
	return predictions, nil
}

// Recent returns the n newest predictions.
func (r *PredictionRepository) Recent(ctx context.Context, n int) ([]domain.PredictionResult, error) {
	return r.List(ctx, domain.PredictionFilter{}, 0, n)
}

// ListByEmail returns every prediction submitted under email, oldest first.
func (r *PredictionRepository) ListByEmail(ctx context.Context, email string) ([]domain.PredictionResult, error) {
	var predictions []domain.PredictionResult
	if err := r.db.WithContext(ctx).
		Where("user_email = ?", email).
		Order("created_at ASC").
		Order("id ASC").
		Find(&predictions).Error; err != nil {
		return nil, err
	}
	return predictions, nil
}

// Count returns the total number of predictions.
func (r *PredictionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.PredictionResult{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
