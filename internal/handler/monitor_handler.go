package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // keeps a slow query from stalling the SSE loop
	snapshotLimit     = 1000
)

// MonitorHandler streams live attempt activity of a quiz to instructors.
type MonitorHandler struct {
	rdb            *redis.Client
	quizService    *service.QuizService
	attemptService *service.AttemptService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	quizService *service.QuizService,
	attemptService *service.AttemptService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		quizService:    quizService,
		attemptService: attemptService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorAttempt struct {
	model.QuizResult
	AnsweredCount int64 `json:"answered_count"`
}

// MonitorQuizSSE godoc
// GET /api/v1/admin/quizzes/:quiz_id/monitor
func (h *MonitorHandler) MonitorQuizSSE(c *gin.Context) {
	quizID, ok := parseIDParam(c, "quiz_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	quiz, err := h.quizService.GetQuiz(reqCtx, quizID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	totalQuestions := 0
	if paper, err := h.quizService.GetPaper(reqCtx, quizID); err == nil {
		totalQuestions = len(paper.Questions)
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, quiz, totalQuestions)

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.QuizMonitorChannel(quizID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refresh queries until some activity proves the quiz is being taken.
	active := false

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON; forward as-is.
			_, _ = c.Writer.WriteString("event: activity\ndata: " + msg.Payload + "\n\n")
			c.Writer.Flush()
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendRefresh(c, reqCtx, quizID)

		case <-keepAliveTicker.C:
			_, _ = c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the first SSE event: every attempt with its progress.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, quiz *model.Quiz, totalQuestions int) {
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	results, total, err := h.attemptService.ListQuizResults(fetchCtx, quiz.ID, 1, snapshotLimit, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to load attempts for monitor snapshot")
	}

	attempts := make([]monitorAttempt, 0, len(results))
	for _, r := range results {
		attempts = append(attempts, monitorAttempt{QuizResult: r})
	}

	counts, err := h.monitorService.GetAttemptCounts(fetchCtx, quiz.ID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count attempts for monitor snapshot")
	}

	var totalViolations int64
	if progress, err := h.monitorService.GetStudentProgress(fetchCtx, quiz.ID); err == nil {
		totalViolations = progress.TotalViolations
		for i := range attempts {
			attempts[i].AnsweredCount = progress.AnsweredCounts[attempts[i].AttemptID]
			attempts[i].ViolationCount = progress.ViolationCounts[attempts[i].AttemptID]
		}
	}

	c.SSEvent("snapshot", gin.H{
		"quiz": gin.H{
			"id":               quiz.ID,
			"title":            quiz.Title,
			"duration_minutes": quiz.DurationMinutes,
			"total_marks":      quiz.TotalMarks,
			"total_questions":  totalQuestions,
		},
		"stats": gin.H{
			"total_attempts":   total,
			"in_progress":      counts.InProgress,
			"submitted":        counts.Submitted,
			"total_violations": totalViolations,
		},
		"attempts": attempts,
	})
	c.Writer.Flush()
}

type attemptProgress struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	AnsweredCount  int64     `json:"answered_count"`
	ViolationCount int64     `json:"violation_count"`
}

// sendRefresh sends compact per-attempt progress counts.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, quizID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, quizID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch attempt progress for refresh")
		return
	}

	rows := make([]attemptProgress, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))
	for id, answered := range progress.AnsweredCounts {
		rows = append(rows, attemptProgress{AttemptID: id, AnsweredCount: answered, ViolationCount: progress.ViolationCounts[id]})
		delete(progress.ViolationCounts, id)
	}
	// Attempts with violations but no answers yet.
	for id, violations := range progress.ViolationCounts {
		rows = append(rows, attemptProgress{AttemptID: id, ViolationCount: violations})
	}

	c.SSEvent("refresh", gin.H{
		"total_violations": progress.TotalViolations,
		"attempts":         rows,
	})
	c.Writer.Flush()
}
