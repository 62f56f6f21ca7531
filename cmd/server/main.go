package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/router"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	"github.com/stemsi/exstem-quiz/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup("quiz-api", cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("pass_percent", cfg.PassPercent).
		Int("proctor_max_violations", cfg.ProctorMaxViolations).
		Msg("Starting quiz API")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	quizRepo := repository.NewQuizRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	sessionRepo := repository.NewActiveSessionRepository(pool)
	certificateRepo := repository.NewCertificateRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	proctorEventRepo := repository.NewProctorEventRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	identityService := service.NewIdentityService(cfg)
	bus := service.NewEventBus(rdb, log)
	sessionService := service.NewSessionService(sessionRepo, rdb, bus, cfg, log)
	certificateService := service.NewCertificateService(certificateRepo, cfg, log)
	quizService := service.NewQuizService(quizRepo, attemptRepo, rdb, cfg, log)
	attemptService := service.NewAttemptService(quizRepo, attemptRepo, sessionService, certificateService, quizService, bus, cfg, log)
	monitorService := service.NewMonitorService(monitorRepo, quizRepo, cfg.PassPercent)
	dashboardService := service.NewDashboardService(dashboardRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(quizService, attemptService, sessionService, log),
		Certificate:   handler.NewCertificateHandler(certificateService, log),
		AdminQuiz:     handler.NewAdminQuizHandler(attemptService, monitorService, log),
		Monitor:       handler.NewMonitorHandler(rdb, quizService, attemptService, monitorService, log),
		Dashboard:     handler.NewDashboardHandler(dashboardService, log),
		WS:            handler.NewWSHandler(attemptService, sessionService, monitorService, cfg.ProctorMaxViolations, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(rdb, database.NewChecker(pool, rdb), log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	proctorWorker := worker.NewProctorEventWorker(proctorEventRepo, rdb, log)
	activityWorker := worker.NewActivityWorker(sessionRepo, rdb, log)
	sweeper := worker.NewDeadlineSweeper(attemptService, certificateService, cfg.SweepSchedule, log)

	workers.Add(3)
	go func() { defer workers.Done(); proctorWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); activityWorker.Start(workerCtx) }()
	go func() {
		defer workers.Done()
		if err := sweeper.Start(workerCtx); err != nil {
			log.Error().Err(err).Msg("Deadline sweeper not running")
		}
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	if n, err := quizService.PrewarmPapers(ctx); err != nil {
		log.Warn().Err(err).Msg("Paper prewarm failed")
	} else {
		log.Info().Int("quizzes", n).Msg("Quiz papers prewarmed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, router.Guards{Identity: identityService, Sessions: sessionService}, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their buffers to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}
