package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/timekeeper"
)

// Attempt repository errors.
var (
	ErrAttemptNotActive = errors.New("attempt not found, not owned by caller, or not in progress")
	ErrOptionMismatch   = errors.New("option does not belong to a question of this quiz")
)

const (
	lockForUpdate = "FOR UPDATE"
	lockForShare  = "FOR SHARE"
)

const attemptColumns = `id, quiz_id, student_id, started_at, submitted_at, score, total_marks, passed, time_taken_seconds, status`

// AttemptRepository handles quiz attempt and answer data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.StartedAt, &a.SubmittedAt,
		&a.Score, &a.TotalMarks, &a.Passed, &a.TimeTakenSeconds, &a.Status)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by its ID.
func (r *AttemptRepository) GetByID(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, attemptID))
}

// GetByQuizAndStudent retrieves the attempt for a specific quiz-student pair.
func (r *AttemptRepository) GetByQuizAndStudent(ctx context.Context, quizID, studentID uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2`,
		quizID, studentID))
}

// Create inserts a new in-progress attempt. A concurrent insert for the same
// (quiz, student) pair makes this return pgx.ErrNoRows.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_attempts (quiz_id, student_id, total_marks, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.QuizID, a.StudentID, a.TotalMarks, model.AttemptStatusInProgress, a.StartedAt,
	).Scan(&a.ID, &a.StartedAt)
}

// lockInProgress is the guard shared by every mutating operation: the attempt
// must exist, belong to studentID and be in progress. The row stays locked
// in mode until tx ends.
func lockInProgress(ctx context.Context, tx pgx.Tx, attemptID, studentID uuid.UUID, mode string) (*model.Attempt, error) {
	a, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM quiz_attempts
		 WHERE id = $1 AND student_id = $2 AND status = 'in_progress'
		 `+mode,
		attemptID, studentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotActive
	}
	return a, err
}

// UpsertAnswer records the selected option for a question, snapshotting its
// correctness. It returns the guarded attempt.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID, studentID, questionID, optionID uuid.UUID) (*model.Attempt, error) {
	var attempt *model.Attempt

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		a, err := lockInProgress(ctx, tx, attemptID, studentID, lockForShare)
		if err != nil {
			return err
		}

		var isCorrect bool
		err = tx.QueryRow(ctx,
			`SELECT o.is_correct
			 FROM options o
			 JOIN questions q ON q.id = o.question_id
			 WHERE o.id = $1 AND q.id = $2 AND q.quiz_id = $3`,
			optionID, questionID, a.QuizID,
		).Scan(&isCorrect)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOptionMismatch
		}
		if err != nil {
			return fmt.Errorf("lookup option: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO answers (attempt_id, question_id, selected_option_id, is_correct, answered_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET selected_option_id = EXCLUDED.selected_option_id,
			     is_correct = EXCLUDED.is_correct,
			     answered_at = EXCLUDED.answered_at`,
			attemptID, questionID, optionID, isCorrect,
		)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}

		attempt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// Submit scores and closes an attempt in one transaction. Of two concurrent
// calls exactly one succeeds; the other returns ErrAttemptNotActive.
// The attempt's active sessions are deactivated in the same transaction.
func (r *AttemptRepository) Submit(ctx context.Context, attemptID, studentID uuid.UUID, passPercent int, now time.Time) (*model.AttemptSubmission, error) {
	var sub *model.AttemptSubmission

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		a, err := lockInProgress(ctx, tx, attemptID, studentID, lockForUpdate)
		if err != nil {
			return err
		}

		var score int
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(q.marks), 0)
			 FROM answers an
			 JOIN questions q ON q.id = an.question_id
			 WHERE an.attempt_id = $1 AND an.is_correct = TRUE`,
			attemptID,
		).Scan(&score)
		if err != nil {
			return fmt.Errorf("sum score: %w", err)
		}

		s := &model.AttemptSubmission{
			AttemptID:        a.ID,
			QuizID:           a.QuizID,
			StudentID:        a.StudentID,
			Score:            score,
			TotalMarks:       a.TotalMarks,
			RequiredToPass:   grading.RequiredToPass(a.TotalMarks, passPercent),
			Passed:           grading.Passed(score, a.TotalMarks, passPercent),
			SubmittedAt:      now,
			TimeTakenSeconds: timekeeper.ElapsedSeconds(a.StartedAt, now),
		}

		tag, err := tx.Exec(ctx,
			`UPDATE quiz_attempts
			 SET status = 'submitted', score = $2, passed = $3, submitted_at = $4, time_taken_seconds = $5
			 WHERE id = $1 AND status = 'in_progress'`,
			attemptID, s.Score, s.Passed, s.SubmittedAt, s.TimeTakenSeconds,
		)
		if err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrAttemptNotActive
		}

		if _, err := tx.Exec(ctx,
			`UPDATE active_sessions SET is_active = FALSE WHERE attempt_id = $1 AND is_active`,
			attemptID,
		); err != nil {
			return fmt.Errorf("deactivate sessions: %w", err)
		}

		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListAnswers returns question_id → selected_option_id for an attempt.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_option_id
		 FROM answers
		 WHERE attempt_id = $1 AND selected_option_id IS NOT NULL`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]uuid.UUID)
	for rows.Next() {
		var qID, oID uuid.UUID
		if err := rows.Scan(&qID, &oID); err != nil {
			return nil, err
		}
		answers[qID] = oID
	}
	return answers, rows.Err()
}

// ListByStudent retrieves every attempt of a student, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, a.student_id, a.started_at, a.submitted_at, a.score,
		        a.total_marks, a.passed, a.time_taken_seconds, a.status,
		        q.title, c.certificate_number
		 FROM quiz_attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 LEFT JOIN certificates c ON c.attempt_id = a.id
		 WHERE a.student_id = $1
		 ORDER BY a.started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttemptSummary
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(
			&s.ID, &s.QuizID, &s.StudentID, &s.StartedAt, &s.SubmittedAt, &s.Score,
			&s.TotalMarks, &s.Passed, &s.TimeTakenSeconds, &s.Status,
			&s.QuizTitle, &s.CertificateNumber,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByQuiz retrieves paginated attempts for a quiz with their violation counts.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID, page, perPage int, status *model.AttemptStatus) ([]model.QuizResult, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := ` FROM quiz_attempts a WHERE a.quiz_id = $1`
	args := []any{quizID}
	if status != nil {
		args = append(args, *status)
		baseQuery += fmt.Sprintf(" AND a.status = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT a.id, a.student_id, a.status, a.score, a.total_marks, a.passed,
		       a.started_at, a.submitted_at, a.time_taken_seconds,
		       (SELECT COUNT(*) FROM proctor_events pe WHERE pe.attempt_id = a.id AND pe.violation)
		` + baseQuery + fmt.Sprintf(`
		ORDER BY a.score DESC NULLS LAST, a.time_taken_seconds ASC NULLS LAST, a.started_at ASC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.QuizResult
	for rows.Next() {
		var res model.QuizResult
		if err := rows.Scan(
			&res.AttemptID, &res.StudentID, &res.Status, &res.Score, &res.TotalMarks, &res.Passed,
			&res.StartedAt, &res.SubmittedAt, &res.TimeTakenSeconds, &res.ViolationCount,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// ListExpired returns in-progress attempts whose deadline plus grace is at or before now.
func (r *AttemptRepository) ListExpired(ctx context.Context, grace time.Duration, now time.Time, limit int) ([]model.ExpiredAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, a.student_id
		 FROM quiz_attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 WHERE a.status = 'in_progress'
		   AND a.started_at + make_interval(mins => q.duration_minutes, secs => $1) <= $2
		 ORDER BY a.started_at
		 LIMIT $3`,
		grace.Seconds(), now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ExpiredAttempt
	for rows.Next() {
		var e model.ExpiredAttempt
		if err := rows.Scan(&e.AttemptID, &e.QuizID, &e.StudentID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
