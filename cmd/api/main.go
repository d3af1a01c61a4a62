package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/timmy/lungscan/internal/api"
	"github.com/timmy/lungscan/internal/app"
	"github.com/timmy/lungscan/internal/config"
	"github.com/timmy/lungscan/internal/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          "lungscan@" + version,
			AttachStacktrace: true,
		}); err != nil {
			appLogger.WithError(err).Warn("Sentry initialization failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := appLogger.WithContext(context.Background())
	application, err := app.Build(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer func() {
		if err := application.Close(); err != nil {
			appLogger.WithError(err).Warn("Failed to release resources")
		}
	}()

	router := api.SetupRouter(&api.Dependencies{
		Predictions: application.Predictions,
		Auth:        application.Auth,
		Batch:       application.Batch,
		Sources:     application.Sources,
		Ping:        application.Ping,
		Metrics:     application.Metrics,
		Logger:      appLogger,
		Version:     version,
	}, cfg.Server)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.WithFields(logger.Fields{
			"addr":         cfg.Server.Addr(),
			"mode":         cfg.Server.Mode,
			"model_loaded": application.Classifier.Loaded(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		appLogger.WithError(err).Error("Server failed")
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
