package model

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is issued at most once per passed attempt.
type Certificate struct {
	ID                uuid.UUID `json:"id"`
	AttemptID         uuid.UUID `json:"attempt_id"`
	StudentID         uuid.UUID `json:"student_id"`
	QuizID            uuid.UUID `json:"quiz_id"`
	CertificateNumber string    `json:"certificate_number"`
	Score             int       `json:"score"`
	TotalMarks        int       `json:"total_marks"`
	Percentage        int       `json:"percentage"`
	IssuedAt          time.Time `json:"issued_at"`
}

// CertificateView adds the quiz title for listing and verification pages.
type CertificateView struct {
	Certificate
	QuizTitle string `json:"quiz_title"`
}

// PendingCertificate is a passed attempt that has no certificate yet.
type PendingCertificate struct {
	AttemptID  uuid.UUID
	StudentID  uuid.UUID
	QuizID     uuid.UUID
	Score      int
	TotalMarks int
}
