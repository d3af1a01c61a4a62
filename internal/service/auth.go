package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/metrics"
	"github.com/timmy/lungscan/internal/repository"
	"github.com/timmy/lungscan/internal/security"
)

// Token is the bearer credential returned by register and login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AuthService registers accounts and exchanges credentials for access tokens.
type AuthService struct {
	users   *repository.UserRepository
	tokens  *security.TokenIssuer
	metrics *metrics.Metrics
}

// NewAuthService creates a new AuthService. m may be nil.
func NewAuthService(users *repository.UserRepository, tokens *security.TokenIssuer, m *metrics.Metrics) *AuthService {
	return &AuthService{users: users, tokens: tokens, metrics: m}
}

// Register creates an account with a hashed password and returns a token for it.
// Any existing user with the email, including one created implicitly by a
// prediction, yields domain.ErrConflict.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Token, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		s.metrics.RecordAuth("register", "invalid")
		return nil, err
	}
	if name == "" {
		s.metrics.RecordAuth("register", "invalid")
		return nil, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordAuth("register", "error")
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		s.metrics.RecordAuth("register", "conflict")
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		s.metrics.RecordAuth("register", "error")
		return nil, err
	}
	user := &domain.User{
		ID:             uuid.NewString(),
		Name:           name,
		Email:          email,
		HashedPassword: &hash,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.RecordAuth("register", "conflict")
		} else {
			s.metrics.RecordAuth("register", "error")
		}
		return nil, err
	}

	logger.FromContext(ctx).WithField(logger.FieldUserEmail, email).Info("User registered")
	s.metrics.RecordAuth("register", "success")
	return s.issue(user)
}

// Login verifies credentials. Unknown emails, accounts without a password and
// wrong passwords all yield domain.ErrUnauthorized; inactive accounts yield domain.ErrForbidden.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Token, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordAuth("login", "error")
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.HasPassword() || !security.VerifyPassword(password, *user.HashedPassword) {
		s.metrics.RecordAuth("login", "unauthorized")
		return nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	if !user.IsActive {
		s.metrics.RecordAuth("login", "forbidden")
		return nil, fmt.Errorf("user is inactive: %w", domain.ErrForbidden)
	}

	s.metrics.RecordAuth("login", "success")
	return s.issue(user)
}

// Authenticate validates a bearer token and returns the account it names.
// Tokens are not revoked: a deactivated account still authenticates until expiry.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}
	user, err := s.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || user.ID != claims.Subject {
		return nil, fmt.Errorf("token subject no longer exists: %w", domain.ErrUnauthorized)
	}
	return user, nil
}

// SetActive activates or deactivates an account.
func (s *AuthService) SetActive(ctx context.Context, email string, active bool) error {
	return s.users.SetActive(ctx, email, active)
}

// SetAdmin grants or revokes administrator rights.
func (s *AuthService) SetAdmin(ctx context.Context, email string, admin bool) error {
	return s.users.SetAdmin(ctx, email, admin)
}

func (s *AuthService) issue(user *domain.User) (*Token, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
	}, nil
}

func validateCredentials(email, password string) error {
	if email == "" {
		return fmt.Errorf("email is required: %w", domain.ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("invalid email %q: %w", email, domain.ErrInvalidInput)
	}
	if password == "" {
		return fmt.Errorf("password is required: %w", domain.ErrInvalidInput)
	}
	if err := security.CheckPasswordLength(password); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}
