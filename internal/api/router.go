package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/lungscan/internal/api/handler"
	"github.com/timmy/lungscan/internal/api/middleware"
	"github.com/timmy/lungscan/internal/config"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/metrics"
	"github.com/timmy/lungscan/internal/service"
	"github.com/timmy/lungscan/internal/source"
)

// Dependencies are the services the router wires into handlers.
type Dependencies struct {
	Predictions *service.PredictionService
	Auth        *service.AuthService
	Batch       *service.BatchService
	Sources     map[string]source.Source // batch sources exposed under /admin, may be empty
	Ping        handler.PingFunc
	Metrics     *metrics.Metrics // nil disables /metrics
	Logger      *logger.Logger
	Version     string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Dependencies, cfg config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadMB << 20

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(deps.Ping, deps.Predictions.ModelInfo)
	predictionHandler := handler.NewPredictionHandler(deps.Predictions, cfg.MaxUploadMB<<20)
	statsHandler := handler.NewStatsHandler(deps.Predictions)
	authHandler := handler.NewAuthHandler(deps.Auth)

	r.GET("/", handler.Root(deps.Version))
	r.GET("/health", healthHandler.Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Predictions
	r.POST("/predict", middleware.RateLimit(cfg.PredictRateLimit, cfg.PredictBurst), predictionHandler.Predict)
	r.GET("/predictions", predictionHandler.ListPredictions)
	r.GET("/predictions/:id/image", predictionHandler.GetPredictionImage)
	r.GET("/predictions/image/:filename", predictionHandler.GetUploadedImage)
	r.GET("/user/:email/predictions", predictionHandler.ListUserPredictions)

	// Stats
	r.GET("/stats", statsHandler.Stats)
	r.GET("/user/:email/stats", statsHandler.UserStats)

	// Auth
	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.RequireAuth(deps.Auth), authHandler.Me)
	}

	// Admin
	if deps.Batch != nil && len(deps.Sources) > 0 {
		adminHandler := handler.NewAdminHandler(deps.Batch, deps.Sources)
		admin := r.Group("/admin", middleware.RequireAuth(deps.Auth), middleware.RequireAdmin())
		{
			admin.GET("/batch", adminHandler.GetBatchStatus)
			admin.POST("/batch", adminHandler.TriggerBatch)
		}
	}

	return r
}
