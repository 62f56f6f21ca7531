package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// DashboardRepository handles student and admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// GetStudentSummary retrieves the stat cards of one student. Averages and
// time spent cover submitted attempts only.
func (r *DashboardRepository) GetStudentSummary(ctx context.Context, studentID uuid.UUID) (*model.StudentDashboard, error) {
	d := &model.StudentDashboard{}
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'submitted'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE status = 'submitted' AND passed),
			(SELECT COUNT(*) FROM certificates WHERE student_id = $1),
			COALESCE(AVG(score * 100.0 / NULLIF(total_marks, 0)) FILTER (WHERE status = 'submitted'), 0)::float8,
			COALESCE(SUM(time_taken_seconds) FILTER (WHERE status = 'submitted'), 0)
		 FROM quiz_attempts
		 WHERE student_id = $1`,
		studentID,
	).Scan(&d.TotalAttempts, &d.InProgress, &d.PassedAttempts, &d.Certificates, &d.AveragePercentage, &d.TotalTimeSeconds)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetAdminSummary retrieves the platform-wide counts.
func (r *DashboardRepository) GetAdminSummary(ctx context.Context) (*model.AdminDashboard, error) {
	d := &model.AdminDashboard{}
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM quizzes),
			(SELECT COUNT(*) FROM quizzes WHERE is_active),
			(SELECT COUNT(DISTINCT student_id) FROM quiz_attempts),
			(SELECT COUNT(*) FROM quiz_attempts),
			(SELECT COUNT(*) FROM quiz_attempts WHERE status = 'in_progress'),
			(SELECT COUNT(*) FROM certificates)`,
	).Scan(&d.TotalQuizzes, &d.ActiveQuizzes, &d.TotalStudents, &d.TotalAttempts, &d.InProgress, &d.TotalCertificates)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetRecentAttempts retrieves the newest attempts, optionally for one student.
func (r *DashboardRepository) GetRecentAttempts(ctx context.Context, studentID *uuid.UUID, limit int) ([]model.RecentAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, q.title, a.student_id, a.status,
		        a.score, a.total_marks, a.passed, a.started_at, a.submitted_at
		 FROM quiz_attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 WHERE $1::uuid IS NULL OR a.student_id = $1
		 ORDER BY a.started_at DESC
		 LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var attempts []model.RecentAttempt
	for rows.Next() {
		var ra model.RecentAttempt
		if err := rows.Scan(&ra.AttemptID, &ra.QuizID, &ra.QuizTitle, &ra.StudentID, &ra.Status,
			&ra.Score, &ra.TotalMarks, &ra.Passed, &ra.StartedAt, &ra.SubmittedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, ra)
	}
	if attempts == nil {
		attempts = []model.RecentAttempt{}
	}
	return attempts, rows.Err()
}
