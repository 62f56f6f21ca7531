package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// maxCertificateNumberLen bounds the path parameter before it reaches the database.
const maxCertificateNumberLen = 96

// CertificateHandler serves certificates to their owners and to verifiers.
type CertificateHandler struct {
	certificateService *service.CertificateService
	log                zerolog.Logger
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certificateService *service.CertificateService, log zerolog.Logger) *CertificateHandler {
	return &CertificateHandler{
		certificateService: certificateService,
		log:                log.With().Str("component", "certificate_handler").Logger(),
	}
}

// ListMine godoc
// GET /api/v1/student/certificates
func (h *CertificateHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	certs, err := h.certificateService.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}
	if certs == nil {
		certs = []model.CertificateView{}
	}

	response.Success(c, http.StatusOK, gin.H{"certificates": certs})
}

// Verify godoc
// GET /api/v1/public/certificates/:number
// Public lookup used to verify a printed certificate.
func (h *CertificateHandler) Verify(c *gin.Context) {
	number := strings.ToUpper(strings.TrimSpace(c.Param("number")))
	if number == "" || len(number) > maxCertificateNumberLen {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	cert, err := h.certificateService.GetByNumber(c.Request.Context(), number)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	// Issued certificates never change.
	c.Header("Cache-Control", "public, max-age=86400")
	response.Success(c, http.StatusOK, cert)
}
