package model

import (
	"time"

	"github.com/google/uuid"
)

// ActiveSession binds an attempt to the one browser tab holding its token.
// Only the token hash is stored.
type ActiveSession struct {
	ID           uuid.UUID `json:"id"`
	StudentID    uuid.UUID `json:"student_id"`
	QuizID       uuid.UUID `json:"quiz_id"`
	AttemptID    uuid.UUID `json:"attempt_id"`
	TokenHash    string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// ValidateSessionRequest is the payload for checking a session token.
// Any string is accepted; tokens of the wrong shape are simply invalid.
type ValidateSessionRequest struct {
	SessionToken string `json:"session_token"`
}

// SessionValidation is the result of a session check.
type SessionValidation struct {
	Valid bool `json:"valid"`
}

// IssuedSession is returned when a fresh session token is handed out.
type IssuedSession struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	SessionToken string    `json:"session_token"`
}

// SessionActivity is a heartbeat queued for the activity worker.
type SessionActivity struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	SeenAt    time.Time `json:"seen_at"`
}
