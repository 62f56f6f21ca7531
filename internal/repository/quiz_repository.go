package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const quizColumns = `id, title, description, duration_minutes, passing_score, total_marks, is_active,
	scheduled_start, scheduled_end, created_by, created_at, updated_at`

// QuizRepository handles read access to quizzes, questions and options.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

func scanQuiz(row pgx.Row) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := row.Scan(&q.ID, &q.Title, &q.Description, &q.DurationMinutes, &q.PassingScore,
		&q.TotalMarks, &q.IsActive, &q.ScheduledStart, &q.ScheduledEnd, &q.CreatedBy,
		&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetByID retrieves a quiz by ID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	return scanQuiz(r.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id))
}

// ListActive retrieves all active quizzes, newest first.
func (r *QuizRepository) ListActive(ctx context.Context) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, *q)
	}
	return quizzes, rows.Err()
}

// GetPaper assembles the student-facing paper of a quiz.
func (r *QuizRepository) GetPaper(ctx context.Context, quizID uuid.UUID) (*model.QuizPaper, error) {
	quiz, err := r.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}

	paper := &model.QuizPaper{
		QuizID:          quiz.ID,
		Title:           quiz.Title,
		Description:     quiz.Description,
		DurationMinutes: quiz.DurationMinutes,
		TotalMarks:      quiz.TotalMarks,
		Questions:       []model.PaperQuestion{},
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, question_type, marks, order_number
		 FROM questions
		 WHERE quiz_id = $1
		 ORDER BY order_number, created_at`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[uuid.UUID]int)
	questionIDs := make([]uuid.UUID, 0)
	for rows.Next() {
		var q model.PaperQuestion
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Marks, &q.OrderNumber); err != nil {
			return nil, err
		}
		q.Options = []model.PaperOption{}
		index[q.ID] = len(paper.Questions)
		questionIDs = append(questionIDs, q.ID)
		paper.Questions = append(paper.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questionIDs) == 0 {
		return paper, nil
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT id, question_id, option_text, order_number
		 FROM options
		 WHERE question_id = ANY($1)
		 ORDER BY order_number, created_at`, questionIDs)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.PaperOption
		var questionID uuid.UUID
		if err := optRows.Scan(&o.ID, &questionID, &o.OptionText, &o.OrderNumber); err != nil {
			return nil, err
		}
		if i, ok := index[questionID]; ok {
			paper.Questions[i].Options = append(paper.Questions[i].Options, o)
		}
	}
	return paper, optRows.Err()
}
