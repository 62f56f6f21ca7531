package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorEvent is one client signal recorded for audit.
type ProctorEvent struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	QuizID     uuid.UUID `json:"quiz_id"`
	StudentID  uuid.UUID `json:"student_id"`
	Kind       string    `json:"kind"`
	Violation  bool      `json:"violation"`
	Count      int       `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}
