package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/config"
	"github.com/smartpest-api/internal/metrics"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/service"
)

// HealthChecker reports database reachability and pool usage
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// Dependencies are the non-service collaborators of the router. Metrics and
// DB may be nil.
type Dependencies struct {
	Tokens  *auth.TokenManager
	Metrics *metrics.Metrics
	DB      HealthChecker
}

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, deps Dependencies, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = cfg.Upload.MaxUploadSize

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	if deps.Metrics != nil {
		router.Use(metricsMiddleware(deps.Metrics))
	}
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	// Handlers
	predictHandler := NewPredictHandler(services, cfg, log)
	reportHandler := NewReportHandler(services, log)
	userHandler := NewUserHandler(services, log)
	feedbackHandler := NewFeedbackHandler(services, log)
	catalogHandler := NewCatalogHandler(services, log)

	// Health check and metrics
	router.GET("/health", healthCheck(services, deps.DB))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	requireAdmin := auth.RequireRole(models.RoleAdmin)

	api := router.Group("/api")
	api.Use(auth.Authenticate(deps.Tokens))
	{
		api.POST("/predict",
			rateLimitMiddleware(cfg.RateLimit.PredictPerSecond, cfg.RateLimit.PredictBurst, deps.Metrics),
			predictHandler.Predict)
		api.GET("/pest-info/:name", predictHandler.PestInfo)

		api.POST("/save-report", reportHandler.SaveReport)
		reports := api.Group("/reports")
		{
			reports.GET("", reportHandler.ListReports)
			reports.GET("/export", requireAdmin, reportHandler.ExportReports)
			reports.GET("/:id", reportHandler.GetReport)
		}

		api.POST("/register", userHandler.Register)
		api.POST("/login", userHandler.Login)
		users := api.Group("/users")
		{
			users.GET("/me", auth.RequireAuth(), userHandler.Me)
			users.GET("", requireAdmin, userHandler.ListUsers)
			users.PUT("/:id", requireAdmin, userHandler.UpdateUser)
			users.DELETE("/:id", requireAdmin, userHandler.DeleteUser)
		}

		feedback := api.Group("/feedback")
		{
			feedback.POST("", auth.RequireAuth(), feedbackHandler.CreateFeedback)
			feedback.GET("", requireAdmin, feedbackHandler.ListFeedback)
			feedback.GET("/:id", requireAdmin, feedbackHandler.GetFeedback)
			feedback.PUT("/:id", requireAdmin, feedbackHandler.UpdateFeedback)
			feedback.DELETE("/:id", requireAdmin, feedbackHandler.DeleteFeedback)
		}

		pesticides := api.Group("/pesticides")
		{
			pesticides.GET("", catalogHandler.ListPesticides)
			pesticides.GET("/:id", catalogHandler.GetPesticide)
			pesticides.POST("", requireAdmin, catalogHandler.CreatePesticide)
			pesticides.PUT("/:id", requireAdmin, catalogHandler.UpdatePesticide)
			pesticides.DELETE("/:id", requireAdmin, catalogHandler.DeletePesticide)
		}

		pests := api.Group("/pests")
		{
			pests.GET("", catalogHandler.ListPests)
			pests.GET("/:id", catalogHandler.GetPest)
			pests.POST("", requireAdmin, catalogHandler.CreatePest)
			pests.PUT("/:id", requireAdmin, catalogHandler.UpdatePest)
			pests.DELETE("/:id", requireAdmin, catalogHandler.DeletePest)
		}

		api.GET("/admin/dashboard", requireAdmin, dashboardHandler(services, log))
	}

	return router
}

// healthCheck returns the health status. A failing database makes the
// service unhealthy; a degraded classifier does not.
func healthCheck(services *service.Services, db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := services.Prediction.ClassifierInfo()
		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "smartpest-api",
			"classifier": gin.H{
				"state":    info.State,
				"source":   info.Source,
				"degraded": info.Degraded(),
			},
		}

		if db != nil {
			ctx, cancel := contextWithTimeout(c, 2*time.Second)
			defer cancel()
			if err := db.HealthCheck(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body["database"] = "unreachable"
			} else {
				body["database"] = "ok"
			}
			stats := db.Stats()
			body["database_pool"] = gin.H{
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
			}
		}

		c.JSON(status, body)
	}
}

// dashboardHandler serves admin statistics
func dashboardHandler(services *service.Services, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("handler", "dashboard").Logger()
	return func(c *gin.Context) {
		dash, err := services.Dashboard.Get(c.Request.Context())
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, dash)
	}
}

// contextWithTimeout creates a context with timeout for handlers
func contextWithTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}
