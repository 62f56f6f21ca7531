package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// DashboardHandler handles student and admin dashboard endpoints.
type DashboardHandler struct {
	dashboardService *service.DashboardService
	log              zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService *service.DashboardService, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		log:              log.With().Str("component", "dashboard_handler").Logger(),
	}
}

// GetStudentDashboard godoc
// GET /api/v1/student/dashboard
// Returns attempt and certificate counts, average percentage, time spent and recent attempts.
func (h *DashboardHandler) GetStudentDashboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	data, err := h.dashboardService.GetStudentDashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, data)
}

// GetAdminDashboard godoc
// GET /api/v1/admin/dashboard
// Returns quiz, student, attempt and certificate counts plus recent attempts.
func (h *DashboardHandler) GetAdminDashboard(c *gin.Context) {
	data, err := h.dashboardService.GetAdminDashboard(c.Request.Context())
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, data)
}
