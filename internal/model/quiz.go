package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
)

// Quiz represents a timed quiz.
type Quiz struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	PassingScore    int        `json:"passing_score"`
	TotalMarks      int        `json:"total_marks"`
	IsActive        bool       `json:"is_active"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	CreatedBy       *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// WindowOpen reports whether now falls inside the quiz's scheduled window.
// A missing bound is treated as open on that side.
func (q *Quiz) WindowOpen(now time.Time) bool {
	if q.ScheduledStart != nil && now.Before(*q.ScheduledStart) {
		return false
	}
	if q.ScheduledEnd != nil && now.After(*q.ScheduledEnd) {
		return false
	}
	return true
}

// Question belongs to exactly one quiz.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	QuizID       uuid.UUID    `json:"quiz_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Marks        int          `json:"marks"`
	OrderNumber  int          `json:"order_number"`
}

// Option belongs to exactly one question.
type Option struct {
	ID          uuid.UUID `json:"id"`
	QuestionID  uuid.UUID `json:"question_id"`
	OptionText  string    `json:"option_text"`
	IsCorrect   bool      `json:"is_correct"`
	OrderNumber int       `json:"order_number"`
}

// QuizPaper is the cached, student-facing projection of a quiz (no correctness flags).
type QuizPaper struct {
	QuizID          uuid.UUID       `json:"quiz_id"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	TotalMarks      int             `json:"total_marks"`
	Questions       []PaperQuestion `json:"questions"`
}

// PaperQuestion is a question as shown to students.
type PaperQuestion struct {
	ID           uuid.UUID     `json:"id"`
	QuestionText string        `json:"question_text"`
	QuestionType QuestionType  `json:"question_type"`
	Marks        int           `json:"marks"`
	OrderNumber  int           `json:"order_number"`
	Options      []PaperOption `json:"options"`
}

// PaperOption is an option as shown to students.
type PaperOption struct {
	ID          uuid.UUID `json:"id"`
	OptionText  string    `json:"option_text"`
	OrderNumber int       `json:"order_number"`
}
