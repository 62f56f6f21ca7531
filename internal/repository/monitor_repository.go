package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// MonitorRepository provides the aggregate reads behind live monitoring and analytics.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAnsweredCounts returns attempt_id → answered question count for the quiz.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT an.attempt_id, COUNT(*)
		 FROM answers an
		 JOIN quiz_attempts a ON a.id = an.attempt_id
		 WHERE a.quiz_id = $1 AND an.selected_option_id IS NOT NULL
		 GROUP BY an.attempt_id`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// GetViolationCounts returns attempt_id → recorded violation count for the quiz.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, COUNT(*)
		 FROM proctor_events
		 WHERE quiz_id = $1 AND violation
		 GROUP BY attempt_id`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// GetAttemptViolationCount returns the recorded violations of one attempt.
func (r *MonitorRepository) GetAttemptViolationCount(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM proctor_events WHERE attempt_id = $1 AND violation`,
		attemptID,
	).Scan(&n)
	return n, err
}

// GetAttemptStats fills the attempt-level aggregates of a quiz.
func (r *MonitorRepository) GetAttemptStats(ctx context.Context, quizID uuid.UUID) (*model.QuizAnalytics, error) {
	a := &model.QuizAnalytics{QuizID: quizID}
	err := r.pool.QueryRow(ctx,
		`SELECT q.title,
		        COUNT(a.id) FILTER (WHERE a.status = 'submitted'),
		        COUNT(a.id) FILTER (WHERE a.status = 'submitted' AND a.passed),
		        COUNT(a.id) FILTER (WHERE a.status = 'in_progress'),
		        COALESCE(AVG(a.score) FILTER (WHERE a.status = 'submitted'), 0)::float8,
		        COALESCE(AVG(a.time_taken_seconds) FILTER (WHERE a.status = 'submitted'), 0)::float8
		 FROM quizzes q
		 LEFT JOIN quiz_attempts a ON a.quiz_id = q.id
		 WHERE q.id = $1
		 GROUP BY q.id, q.title`,
		quizID,
	).Scan(&a.Title, &a.TotalAttempts, &a.PassedAttempts, &a.InProgress, &a.AverageScore, &a.AverageTimeSeconds)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetQuestionStats returns per-question answer counts in paper order.
func (r *MonitorRepository) GetQuestionStats(ctx context.Context, quizID uuid.UUID) ([]model.QuestionAnalytics, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.question_text, q.marks,
		        COUNT(an.id) FILTER (WHERE an.is_correct IS NOT NULL),
		        COUNT(an.id) FILTER (WHERE an.is_correct)
		 FROM questions q
		 LEFT JOIN answers an ON an.question_id = q.id
		 WHERE q.quiz_id = $1
		 GROUP BY q.id, q.question_text, q.marks, q.order_number
		 ORDER BY q.order_number`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QuestionAnalytics
	for rows.Next() {
		var qa model.QuestionAnalytics
		if err := rows.Scan(&qa.QuestionID, &qa.QuestionText, &qa.Marks, &qa.TotalAnswers, &qa.CorrectAnswers); err != nil {
			return nil, err
		}
		out = append(out, qa)
	}
	return out, rows.Err()
}
