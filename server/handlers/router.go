package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/config"
	"github.com/san-kum/probowler/server/middleware"
)

// RouterConfig collects the handlers and middleware NewRouter wires together.
type RouterConfig struct {
	Analysis    *AnalysisHandler
	WebSocket   *WebSocketHandler
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	Security    config.SecurityConfig
	Probes      []middleware.Probe
	Version     string
	Logger      *zap.Logger
}

func NewRouter(rc RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLogger(rc.Logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(rc.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(rc.Security.MaxRequestSize))
	router.Use(middleware.InputValidation())
	router.Use(middleware.TimeoutHandler(rc.Security.RequestTimeout))

	health := middleware.HealthCheck(rc.Version, rc.Probes...)
	router.GET("/health", health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", rc.RateLimiter.RateLimit(), rc.WebSocket.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		api.GET("/health", health)

		limited := api.Group("/")
		limited.Use(rc.RateLimiter.RateLimit())
		{
			limited.POST("/analyze", rc.Analysis.Analyze)
			limited.POST("/analyze/csv", rc.Analysis.AnalyzeCSV)
			limited.POST("/analyze/batch", rc.Analysis.AnalyzeBatch)

			limited.POST("/upload-video", rc.RateLimiter.RateLimitWithConfig(rc.Security.UploadRPS, rc.Security.UploadBurst), rc.Analysis.UploadVideo)
			limited.GET("/jobs/:job_id", rc.Analysis.GetJob)

			limited.GET("/reports", rc.Analysis.ListReports)
			limited.GET("/reports/:id", rc.Analysis.GetReport)
			limited.GET("/reports/:id/csv", rc.Analysis.GetReportCSV)

			limited.GET("/stats", rc.Analysis.GetStats)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.IPWhitelist(rc.Security.AdminIPs))
		admin.Use(rc.Auth.RequireAuth())
		admin.Use(rc.Auth.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/stats", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{
					"processor":    rc.Analysis.processor.GetStats(),
					"queue":        rc.Analysis.processor.GetQueueStats(),
					"rate_limiter": rc.RateLimiter.GetGlobalStats(),
				})
			})
			admin.GET("/cache-stats", rc.Analysis.GetCacheStats)
			admin.DELETE("/reports/:id", rc.Analysis.DeleteReport)
		}
	}

	return router
}
