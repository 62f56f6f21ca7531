package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

const (
	defaultPerPage = 20
)

// AdminQuizHandler serves instructor views over quiz attempts.
type AdminQuizHandler struct {
	attemptService *service.AttemptService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewAdminQuizHandler creates a new AdminQuizHandler.
func NewAdminQuizHandler(attemptService *service.AttemptService, monitorService *service.MonitorService, log zerolog.Logger) *AdminQuizHandler {
	return &AdminQuizHandler{
		attemptService: attemptService,
		monitorService: monitorService,
		log:            log.With().Str("component", "admin_quiz_handler").Logger(),
	}
}

// ListAttempts godoc
// GET /api/v1/admin/quizzes/:quiz_id/attempts?page=&per_page=&status=
func (h *AdminQuizHandler) ListAttempts(c *gin.Context) {
	quizID, ok := parseIDParam(c, "quiz_id")
	if !ok {
		return
	}

	var q model.ListAttemptsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultPerPage
	}

	var status *model.AttemptStatus
	if q.Status != "" {
		s := model.AttemptStatus(q.Status)
		status = &s
	}

	results, total, err := h.attemptService.ListQuizResults(c.Request.Context(), quizID, q.Page, q.PerPage, status)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}
	if results == nil {
		results = []model.QuizResult{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, response.NewPagination(q.Page, q.PerPage, total))
}

// GetAnalytics godoc
// GET /api/v1/admin/quizzes/:quiz_id/analytics
func (h *AdminQuizHandler) GetAnalytics(c *gin.Context) {
	quizID, ok := parseIDParam(c, "quiz_id")
	if !ok {
		return
	}

	analytics, err := h.monitorService.GetAnalytics(c.Request.Context(), quizID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, analytics)
}

// ResetSession godoc
// POST /api/v1/admin/attempts/:attempt_id/reset-session
// Ends the attempt's session so the student can resume in another tab.
func (h *AdminQuizHandler) ResetSession(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	if err := h.attemptService.ResetSession(c.Request.Context(), attemptID); err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	if claims := middleware.GetClaims(c); claims != nil {
		h.log.Info().
			Str("attempt_id", attemptID.String()).
			Str("admin_id", claims.UserID.String()).
			Msg("Attempt session reset by admin")
	}

	response.Success(c, http.StatusOK, gin.H{"attempt_id": attemptID, "reset": true})
}
