package model

import (
	"time"

	"github.com/google/uuid"
)

// RecentAttempt is one row of a dashboard's recent activity list.
type RecentAttempt struct {
	AttemptID   uuid.UUID     `json:"attempt_id"`
	QuizID      uuid.UUID     `json:"quiz_id"`
	QuizTitle   string        `json:"quiz_title"`
	StudentID   uuid.UUID     `json:"student_id"`
	Status      AttemptStatus `json:"status"`
	Score       *int          `json:"score,omitempty"`
	TotalMarks  int           `json:"total_marks"`
	Percentage  *int          `json:"percentage,omitempty"`
	Passed      *bool         `json:"passed,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
}

// StudentDashboard summarises one student's quiz history.
type StudentDashboard struct {
	TotalAttempts     int64           `json:"total_attempts"`
	InProgress        int64           `json:"in_progress"`
	PassedAttempts    int64           `json:"passed_attempts"`
	Certificates      int64           `json:"certificates"`
	AveragePercentage float64         `json:"average_percentage"`
	TotalTimeSeconds  int64           `json:"total_time_seconds"`
	RecentAttempts    []RecentAttempt `json:"recent_attempts"`
}

// AdminDashboard holds the platform-wide stat cards.
type AdminDashboard struct {
	TotalQuizzes      int64           `json:"total_quizzes"`
	ActiveQuizzes     int64           `json:"active_quizzes"`
	TotalStudents     int64           `json:"total_students"`
	TotalAttempts     int64           `json:"total_attempts"`
	InProgress        int64           `json:"in_progress"`
	TotalCertificates int64           `json:"total_certificates"`
	RecentAttempts    []RecentAttempt `json:"recent_attempts"`
}
