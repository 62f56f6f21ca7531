package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// QuizStore is the read side of quizzes.
type QuizStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	ListActive(ctx context.Context) ([]model.Quiz, error)
	GetPaper(ctx context.Context, quizID uuid.UUID) (*model.QuizPaper, error)
}

// AttemptStore persists attempts and answers. Create, UpsertAnswer and
// Submit must be atomic with respect to each other.
type AttemptStore interface {
	GetByID(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error)
	GetByQuizAndStudent(ctx context.Context, quizID, studentID uuid.UUID) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	UpsertAnswer(ctx context.Context, attemptID, studentID, questionID, optionID uuid.UUID) (*model.Attempt, error)
	Submit(ctx context.Context, attemptID, studentID uuid.UUID, passPercent int, now time.Time) (*model.AttemptSubmission, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.AttemptSummary, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID, page, perPage int, status *model.AttemptStatus) ([]model.QuizResult, int64, error)
	ListExpired(ctx context.Context, grace time.Duration, now time.Time, limit int) ([]model.ExpiredAttempt, error)
}

// SessionStore persists active sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.ActiveSession) error
	FindActive(ctx context.Context, attemptID uuid.UUID) (*model.ActiveSession, error)
	DeactivateByAttempt(ctx context.Context, attemptID uuid.UUID) (int64, error)
}

// CertificateStore persists certificates.
type CertificateStore interface {
	ExistsForAttempt(ctx context.Context, attemptID uuid.UUID) (bool, error)
	Create(ctx context.Context, c *model.Certificate) (bool, error)
	GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.CertificateView, error)
	GetByNumber(ctx context.Context, number string) (*model.CertificateView, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.CertificateView, error)
	ListPending(ctx context.Context, limit int) ([]model.PendingCertificate, error)
}

// MonitorStore provides aggregate reads for monitoring and analytics.
type MonitorStore interface {
	GetAnsweredCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error)
	GetViolationCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error)
	GetAttemptViolationCount(ctx context.Context, attemptID uuid.UUID) (int64, error)
	GetAttemptStats(ctx context.Context, quizID uuid.UUID) (*model.QuizAnalytics, error)
	GetQuestionStats(ctx context.Context, quizID uuid.UUID) ([]model.QuestionAnalytics, error)
}

// DashboardStore provides the stat cards of the student and admin dashboards.
type DashboardStore interface {
	GetStudentSummary(ctx context.Context, studentID uuid.UUID) (*model.StudentDashboard, error)
	GetAdminSummary(ctx context.Context) (*model.AdminDashboard, error)
	GetRecentAttempts(ctx context.Context, studentID *uuid.UUID, limit int) ([]model.RecentAttempt, error)
}
