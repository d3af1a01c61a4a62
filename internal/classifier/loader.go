package classifier

import (
	"context"
	"os"

	"github.com/timmy/lungscan/internal/config"
	"github.com/timmy/lungscan/internal/logger"
)

// Load builds a Classifier for the configured backend. Load failures are logged and
// produce an unloaded classifier so the API can still start and report health.
func Load(ctx context.Context, cfg config.ModelConfig) *Classifier {
	ctx = logger.SetComponent(ctx, "classifier")

	switch cfg.Backend {
	case "remote":
		if cfg.RemoteURL == "" {
			logger.CtxWarn(ctx, "Remote model backend selected without remote_url, predictions disabled")
			return New(nil, cfg.Version)
		}
		logger.CtxInfo(ctx, "Using remote model server: url=%s, model=%s", cfg.RemoteURL, cfg.RemoteName)
		return New(NewRemoteModel(cfg.RemoteURL, cfg.RemoteName, cfg.RemoteTimeout), cfg.Version)
	default:
		if _, err := os.Stat(cfg.Path); err != nil {
			logger.FromContext(ctx).WithError(err).Warnf("Model file not found at %s, predictions disabled", cfg.Path)
			return New(nil, cfg.Version)
		}
		model, err := NewOnnxModel(cfg.Path, cfg.OnnxRuntimeLib)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warnf("Failed to load model from %s, predictions disabled", cfg.Path)
			return New(nil, cfg.Version)
		}
		logger.CtxInfo(ctx, "Model loaded: path=%s", cfg.Path)
		return New(model, cfg.Version)
	}
}
