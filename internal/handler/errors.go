package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// serviceErrors maps domain sentinels to HTTP status and response code.
var serviceErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrQuizUnavailable, http.StatusConflict, response.ErrQuizUnavailable},
	{service.ErrAlreadyCompleted, http.StatusConflict, response.ErrAlreadyCompleted},
	{service.ErrInvalidAttempt, http.StatusConflict, response.ErrInvalidAttempt},
	{service.ErrInvalidOption, http.StatusBadRequest, response.ErrInvalidOption},
	{service.ErrSessionActive, http.StatusConflict, response.ErrSessionActive},
	{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
}

// failWithServiceError writes the response for err. Unknown errors are
// logged and reported as INTERNAL_ERROR.
func failWithServiceError(c *gin.Context, log zerolog.Logger, err error) {
	if status, code, ok := lookupServiceError(err); ok {
		response.Fail(c, status, code)
		return
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

func lookupServiceError(err error) (int, response.ErrCode, bool) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, response.ErrInternal, false
}

// parseIDParam parses a UUID path parameter, writing INVALID_ID on failure.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
