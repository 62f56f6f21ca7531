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

// StudentPortalHandler handles student-facing endpoints (lobby, attempts).
type StudentPortalHandler struct {
	quizService    *service.QuizService
	attemptService *service.AttemptService
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	quizService *service.QuizService,
	attemptService *service.AttemptService,
	sessionService *service.SessionService,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		quizService:    quizService,
		attemptService: attemptService,
		sessionService: sessionService,
		log:            log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetLobby godoc
// GET /api/v1/student/quizzes
// Returns active quizzes with the caller's attempt status.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.quizService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}
	if lobby == nil {
		lobby = []service.LobbyQuiz{}
	}

	response.Success(c, http.StatusOK, gin.H{"quizzes": lobby})
}

// StartAttempt godoc
// POST /api/v1/student/quizzes/:quiz_id/start
// Creates the attempt (idempotent). The session token is only present when
// the attempt was created by this call.
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, ok := parseIDParam(c, "quiz_id")
	if !ok {
		return
	}

	result, err := h.attemptService.Start(c.Request.Context(), claims.UserID, quizID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyStarted {
		status = http.StatusOK
	}
	response.Success(c, status, result)
}

// GetPaper godoc
// GET /api/v1/student/attempts/:attempt_id/paper
// Returns the paper, saved answers and remaining time. Covers page reloads.
// Guarded by RequireAttemptSession.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// ValidateSession godoc
// POST /api/v1/student/attempts/:attempt_id/session/validate
// Reports whether the given token is the attempt's active session.
func (h *StudentPortalHandler) ValidateSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ValidateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	valid, err := h.sessionService.Validate(c.Request.Context(), attemptID, claims.UserID, req.SessionToken)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, model.SessionValidation{Valid: valid})
}

// ReissueSession godoc
// POST /api/v1/student/attempts/:attempt_id/session
// Issues a new session token after an instructor reset.
func (h *StudentPortalHandler) ReissueSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	issued, err := h.attemptService.ReissueSession(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, issued)
}

// RecordAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers
// Saves (or replaces) the answer to one question.
func (h *StudentPortalHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.RecordAnswer(c.Request.Context(), attemptID, claims.UserID, req.QuestionID, req.OptionID); err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID, "saved": true})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Scores the attempt and issues a certificate when passed.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetResults godoc
// GET /api/v1/student/results
func (h *StudentPortalHandler) GetResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	results, err := h.attemptService.ListResults(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}
	if results == nil {
		results = []model.AttemptSummary{}
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}
