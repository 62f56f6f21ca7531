package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// HeaderSessionToken carries the per-tab attempt session token.
const HeaderSessionToken = "X-Session-Token"

// SessionValidator checks attempt session tokens.
type SessionValidator interface {
	Validate(ctx context.Context, attemptID, studentID uuid.UUID, token string) (bool, error)
}

// RequireAttemptSession rejects requests whose X-Session-Token is not the
// active session of the :attempt_id in the path. Must run after RequireStudentJWT.
func RequireAttemptSession(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || claims.TokenType != service.TokenTypeStudent {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		attemptID, err := uuid.Parse(c.Param("attempt_id"))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		token := c.GetHeader(HeaderSessionToken)
		if token == "" {
			response.AbortFail(c, http.StatusForbidden, response.ErrSessionInvalid)
			return
		}

		ok, err := sessions.Validate(c.Request.Context(), attemptID, claims.UserID, token)
		if err != nil {
			log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Session validation failed")
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
		if !ok {
			response.AbortFail(c, http.StatusForbidden, response.ErrSessionInvalid)
			return
		}

		c.Next()
	}
}
