package api

import (
	"github.com/gin-gonic/gin"
	"github.com/tkhuang/riskcast/internal/api/handler"
	"github.com/tkhuang/riskcast/internal/api/middleware"
	"github.com/tkhuang/riskcast/internal/config"
	"github.com/tkhuang/riskcast/internal/logger"
	"github.com/tkhuang/riskcast/internal/queue"
	"github.com/tkhuang/riskcast/internal/service"
	"gorm.io/gorm"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	jobService *service.JobService,
	scalingEngine *service.ScalingEngine,
	db *gorm.DB,
	broker queue.Broker,
	log *logger.Logger,
	cfg *config.ServerConfig,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(db, broker)
	jobHandler := handler.NewJobHandler(jobService)
	scalingHandler := handler.NewScalingHandler(scalingEngine)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Bulk jobs
		v1.POST("/jobs", jobHandler.CreateJob)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.POST("/jobs/:id/cancel", jobHandler.CancelJob)

		// Autoscaler
		v1.GET("/scaling/status", scalingHandler.Status)
		v1.GET("/scaling/history", scalingHandler.History)
		v1.POST("/scaling/manual", scalingHandler.Manual)
	}

	return r
}
