package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmy/lungscan/internal/classifier"
	"github.com/timmy/lungscan/internal/classifier/classifiertest"
	"github.com/timmy/lungscan/internal/config"
	"github.com/timmy/lungscan/internal/repository"
	"github.com/timmy/lungscan/internal/security"
	"github.com/timmy/lungscan/internal/storage"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	model       *classifiertest.FakeModel
	uploadDir   string
	predictions *PredictionService
	auth        *AuthService
	users       *repository.UserRepository
	jobs        *repository.JobRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })

	model := &classifiertest.FakeModel{}
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	images := storage.NewImageStore(nil, storage.NewLocalStorage(uploadDir), "predictions", nil)
	predictionRepo := repository.NewPredictionRepository(db)
	userRepo := repository.NewUserRepository(db)

	return &harness{
		model:       model,
		uploadDir:   uploadDir,
		predictions: NewPredictionService(classifier.New(model, ""), images, predictionRepo, userRepo, nil),
		auth:        NewAuthService(userRepo, security.NewTokenIssuer("test-secret", time.Hour), nil),
		users:       userRepo,
		jobs:        repository.NewJobRepository(db),
	}
}
