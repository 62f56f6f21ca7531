package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Certificate   *handler.CertificateHandler
	AdminQuiz     *handler.AdminQuizHandler
	Monitor       *handler.MonitorHandler
	Dashboard     *handler.DashboardHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// Guards are the auth dependencies of the route groups.
type Guards struct {
	Identity middleware.TokenValidator
	Sessions middleware.SessionValidator
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background goroutines owned by middleware.
func SetupRouter(ctx context.Context, guards Guards, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", middleware.HeaderSessionToken}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	brotliCfg := middleware.DefaultBrotliConfig
	brotliCfg.SkipPrefixes = []string{"/ws/"}
	router.Use(middleware.Brotli(brotliCfg))

	router.GET("/health", handlers.System.Health)

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute)

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	public := router.Group("/api/v1/public")
	public.Use(limiter.Middleware())
	{
		public.GET("/certificates/:number", handlers.Certificate.Verify)
	}

	// ─── 1. Student Group ──────────────────────────────────────────────
	student := router.Group("/api/v1/student")
	student.Use(middleware.RequireStudentJWT(guards.Identity), limiter.Middleware(), middleware.NoStore())
	{
		student.GET("/dashboard", handlers.Dashboard.GetStudentDashboard)
		student.GET("/quizzes", handlers.StudentPortal.GetLobby)
		student.POST("/quizzes/:quiz_id/start", handlers.StudentPortal.StartAttempt)

		attempts := student.Group("/attempts/:attempt_id")
		{
			attempts.GET("/paper", middleware.RequireAttemptSession(guards.Sessions), handlers.StudentPortal.GetPaper)
			attempts.POST("/session/validate", handlers.StudentPortal.ValidateSession)
			attempts.POST("/session", handlers.StudentPortal.ReissueSession)
			attempts.PUT("/answers", handlers.StudentPortal.RecordAnswer)
			attempts.POST("/submit", handlers.StudentPortal.SubmitAttempt)
		}

		student.GET("/results", handlers.StudentPortal.GetResults)
		student.GET("/certificates", handlers.Certificate.ListMine)
	}

	// ─── 2. Admin Group ────────────────────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdminJWT(guards.Identity))
	{
		admin.GET("/dashboard", handlers.Dashboard.GetAdminDashboard)
		admin.GET("/quizzes/:quiz_id/attempts", handlers.AdminQuiz.ListAttempts)
		admin.GET("/quizzes/:quiz_id/analytics", handlers.AdminQuiz.GetAnalytics)
		admin.GET("/quizzes/:quiz_id/monitor", handlers.Monitor.MonitorQuizSSE)
		admin.POST("/attempts/:attempt_id/reset-session", handlers.AdminQuiz.ResetSession)
		admin.GET("/system/queues", handlers.System.QueueStats)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(guards.Identity))
	{
		ws.GET("/student/attempts/:attempt_id/proctor", handlers.WS.ProctorStream)
	}

	return router
}
