package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lungscan/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository handles user records keyed by email.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail retrieves a user by email. A missing record returns (nil, nil).
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user. An existing email yields domain.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("email %s already registered: %w", user.Email, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// RecordPrediction creates the user with one prediction or increments the
// existing counter in a single statement, so concurrent calls never lose updates.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - email: submitter email, the conflict key.
//   - name: display name for a new user; empty uses domain.AnonymousUserName.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *UserRepository) RecordPrediction(ctx context.Context, email, name string) error {
	if name == "" {
		name = domain.AnonymousUserName
	}
	user := domain.User{
		ID:               uuid.NewString(),
		Name:             name,
		Email:            email,
		TotalPredictions: 1,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_predictions": gorm.Expr("users.total_predictions + 1"),
		}),
	}).Create(&user).Error
}

// SetActive flips the account's active flag.
func (r *UserRepository) SetActive(ctx context.Context, email string, active bool) error {
	return r.updateFlag(ctx, email, "is_active", active)
}

// SetAdmin grants or revokes administrator rights.
func (r *UserRepository) SetAdmin(ctx context.Context, email string, admin bool) error {
	return r.updateFlag(ctx, email, "is_admin", admin)
}

func (r *UserRepository) updateFlag(ctx context.Context, email, column string, value bool) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", email).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return nil
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
