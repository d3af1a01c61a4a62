package domain

import "time"

// AnonymousUserName is used when a prediction carries an email but no name.
const AnonymousUserName = "Anonymous"

// User is a submitter of predictions and, once registered, an account holder.
type User struct {
	ID               string    `gorm:"type:text;primaryKey" json:"id"`
	Name             string    `gorm:"type:text;not null" json:"name"`
	Email            string    `gorm:"type:text;not null;uniqueIndex:idx_users_email" json:"email"`
	TotalPredictions int       `gorm:"not null;default:0" json:"total_predictions"`
	HashedPassword   *string   `gorm:"type:text" json:"-"`
	IsActive         bool      `gorm:"not null" json:"is_active"`
	IsAdmin          bool      `gorm:"not null" json:"is_admin"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string {
	return "users"
}

// HasPassword reports whether the account was registered with credentials.
func (u *User) HasPassword() bool {
	return u.HashedPassword != nil && *u.HashedPassword != ""
}

// UserStats summarises the predictions submitted under one email.
type UserStats struct {
	TotalPredictions     int     `json:"total_predictions"`
	MostCommonPrediction *string `json:"most_common_prediction"`
	AverageConfidence    float64 `json:"average_confidence"`
}
