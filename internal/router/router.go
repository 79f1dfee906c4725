package router

import (
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/Deji-Tech/lawsa-iuo/internal/handler"
	"github.com/Deji-Tech/lawsa-iuo/internal/middleware"
	"github.com/Deji-Tech/lawsa-iuo/internal/monitoring"
	"github.com/Deji-Tech/lawsa-iuo/internal/response"
	"github.com/Deji-Tech/lawsa-iuo/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	CBT     *handler.CBTHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(monitoring.MetricsMiddleware())

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", monitoring.PrometheusHandler())

	// ─── 1. CBT Group (JWT + Rate Limit) ───────────────────────────────
	cbt := router.Group("/api/v1/cbt")
	cbt.Use(
		middleware.RequireJWT(authService),
		limiter.Middleware(),
		middleware.NoStore(),
		middleware.Brotli(),
	)
	{
		cbt.GET("/progress/active", handlers.CBT.ActiveProgress)

		course := cbt.Group("/courses/:course_id")
		course.GET("/progress", handlers.CBT.GetProgress)
		course.DELETE("/progress", handlers.CBT.DiscardProgress)

		course.POST("/session", handlers.CBT.Begin)
		course.GET("/session", handlers.CBT.State)
		course.POST("/session/answer", handlers.CBT.Answer)
		course.POST("/session/next", handlers.CBT.Next)
		course.POST("/session/prev", handlers.CBT.Prev)
		course.POST("/session/pause", handlers.CBT.Pause)
		course.POST("/session/resume", handlers.CBT.Resume)
		course.POST("/session/hidden", handlers.CBT.Hidden)
		course.POST("/session/submit", handlers.CBT.Submit)

		cbt.GET("/attempts", handlers.Attempt.List)
		cbt.GET("/attempts/average", handlers.Attempt.Average)
	}

	// ─── 2. WebSocket Group (query token) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/cbt/courses/:course_id/stream", handlers.WS.Stream)
	}

	return router
}
