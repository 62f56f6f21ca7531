package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	// AttemptStatusAbandoned is persisted by the schema but never produced by a transition.
	AttemptStatusAbandoned AttemptStatus = "abandoned"
)

// Attempt is one student's single attempt at one quiz.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	QuizID           uuid.UUID     `json:"quiz_id"`
	StudentID        uuid.UUID     `json:"student_id"`
	StartedAt        time.Time     `json:"started_at"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	Score            *int          `json:"score,omitempty"`
	TotalMarks       int           `json:"total_marks"`
	Passed           *bool         `json:"passed,omitempty"`
	TimeTakenSeconds *int          `json:"time_taken_seconds,omitempty"`
	Status           AttemptStatus `json:"status"`
}

// AttemptSubmission carries the scored fields written atomically on submit.
type AttemptSubmission struct {
	AttemptID        uuid.UUID
	QuizID           uuid.UUID
	StudentID        uuid.UUID
	Score            int
	TotalMarks       int
	RequiredToPass   int
	Passed           bool
	SubmittedAt      time.Time
	TimeTakenSeconds int
}

// StartResult is returned when a student starts (or resumes) an attempt.
type StartResult struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	SessionToken     string    `json:"session_token,omitempty"`
	AlreadyStarted   bool      `json:"already_started"`
	StartedAt        time.Time `json:"started_at"`
	DurationMinutes  int       `json:"duration_minutes"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// SubmitResult is returned after a successful submission.
type SubmitResult struct {
	AttemptID         uuid.UUID `json:"attempt_id"`
	Score             int       `json:"score"`
	TotalMarks        int       `json:"total_marks"`
	RequiredToPass    int       `json:"required_to_pass"`
	Passed            bool      `json:"passed"`
	TimeTakenSeconds  int       `json:"time_taken_seconds"`
	CertificateNumber *string   `json:"certificate_number,omitempty"`
}

// AttemptSummary is a row of the student results page.
type AttemptSummary struct {
	Attempt
	QuizTitle         string  `json:"quiz_title"`
	RequiredToPass    int     `json:"required_to_pass"`
	CertificateNumber *string `json:"certificate_number,omitempty"`
}

// AttemptState is what a (re)loaded quiz page needs to render.
type AttemptState struct {
	Attempt          Attempt                 `json:"attempt"`
	Paper            *QuizPaper              `json:"paper"`
	Answers          map[uuid.UUID]uuid.UUID `json:"answers"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	RequiredToPass   int                     `json:"required_to_pass"`
}

// QuizResult is a row of the admin results listing.
type QuizResult struct {
	AttemptID        uuid.UUID     `json:"attempt_id"`
	StudentID        uuid.UUID     `json:"student_id"`
	Status           AttemptStatus `json:"status"`
	Score            *int          `json:"score"`
	TotalMarks       int           `json:"total_marks"`
	Passed           *bool         `json:"passed"`
	StartedAt        time.Time     `json:"started_at"`
	SubmittedAt      *time.Time    `json:"submitted_at"`
	TimeTakenSeconds *int          `json:"time_taken_seconds"`
	ViolationCount   int64         `json:"violation_count"`
}

// ExpiredAttempt identifies an in-progress attempt whose deadline has passed.
type ExpiredAttempt struct {
	AttemptID uuid.UUID
	QuizID    uuid.UUID
	StudentID uuid.UUID
}

// ListAttemptsQuery filters the admin results listing.
type ListAttemptsQuery struct {
	Page    int    `form:"page" json:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" json:"per_page" binding:"omitempty,min=1,max=100"`
	Status  string `form:"status" json:"status" binding:"omitempty,oneof=in_progress submitted abandoned"`
}
