// Package app wires configuration into the services shared by the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/lungscan/internal/classifier"
	"github.com/timmy/lungscan/internal/config"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/metrics"
	"github.com/timmy/lungscan/internal/repository"
	"github.com/timmy/lungscan/internal/security"
	"github.com/timmy/lungscan/internal/service"
	"github.com/timmy/lungscan/internal/source"
	"github.com/timmy/lungscan/internal/source/localdir"
	"github.com/timmy/lungscan/internal/storage"
	"gorm.io/gorm"
)

// InboxSource names the configured batch directory among the admin sources.
const InboxSource = "inbox"

// App holds the wired services.
type App struct {
	DB          *gorm.DB
	Metrics     *metrics.Metrics
	Classifier  *classifier.Classifier
	Predictions *service.PredictionService
	Auth        *service.AuthService
	Batch       *service.BatchService
	Sources     map[string]source.Source
}

// Build opens the database, object storage and model and wires the services.
// A missing model leaves the classifier unloaded rather than failing.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var remote storage.ObjectStorage
	if cfg.Storage.RemoteEnabled() {
		remote, err = storage.NewStorage(cfg.Storage)
		if err != nil {
			_ = repository.Close(db)
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := remote.EnsureBucket(ctx); err != nil {
			// Uploads fall back to local disk, so an unreachable store is not fatal.
			logger.FromContext(ctx).WithError(err).Warn("Failed to ensure storage bucket")
		}
	} else {
		logger.CtxInfo(ctx, "Object storage not configured, saving uploads to %s", cfg.Storage.UploadDir)
	}
	images := storage.NewImageStore(remote, storage.NewLocalStorage(cfg.Storage.UploadDir), cfg.Storage.Folder, m)

	clf := classifier.Load(ctx, cfg.Model)

	predictionRepo := repository.NewPredictionRepository(db)
	userRepo := repository.NewUserRepository(db)
	predictions := service.NewPredictionService(clf, images, predictionRepo, userRepo, m)

	sources := map[string]source.Source{}
	if cfg.Batch.InboxDir != "" {
		sources[InboxSource] = localdir.NewAdapter(cfg.Batch.InboxDir)
	}

	return &App{
		DB:          db,
		Metrics:     m,
		Classifier:  clf,
		Predictions: predictions,
		Auth:        service.NewAuthService(userRepo, security.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL()), m),
		Batch: service.NewBatchService(predictions, repository.NewJobRepository(db), &service.BatchConfig{
			Workers:   cfg.Batch.Workers,
			BatchSize: cfg.Batch.BatchSize,
		}),
		Sources: sources,
	}, nil
}

// Ping checks database reachability.
func (a *App) Ping(ctx context.Context) error {
	return repository.Ping(ctx, a.DB)
}

// Close releases the model and the database pool.
func (a *App) Close() error {
	return errors.Join(a.Classifier.Close(), repository.Close(a.DB))
}
