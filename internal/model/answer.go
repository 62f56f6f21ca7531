package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is a student's current choice for one question within an attempt.
// IsCorrect is copied from the option when the answer is recorded.
type Answer struct {
	ID               uuid.UUID  `json:"id"`
	AttemptID        uuid.UUID  `json:"attempt_id"`
	QuestionID       uuid.UUID  `json:"question_id"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id"`
	IsCorrect        *bool      `json:"-"`
	AnsweredAt       time.Time  `json:"answered_at"`
}

// RecordAnswerRequest is the payload for saving a single answer.
type RecordAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	OptionID   uuid.UUID `json:"option_id" binding:"required"`
}
