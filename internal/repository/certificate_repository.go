package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ErrCertificateNumberTaken is returned when a generated number collides.
var ErrCertificateNumberTaken = errors.New("certificate number already in use")

const certificateColumns = `c.id, c.attempt_id, c.student_id, c.quiz_id, c.certificate_number, c.score, c.total_marks, c.percentage, c.issued_at`

// CertificateRepository handles certificate data access.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

// ExistsForAttempt reports whether the attempt already has a certificate.
func (r *CertificateRepository) ExistsForAttempt(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM certificates WHERE attempt_id = $1)`, attemptID,
	).Scan(&exists)
	return exists, err
}

// Create inserts a certificate unless one already exists for the attempt.
// It reports whether a row was written.
func (r *CertificateRepository) Create(ctx context.Context, c *model.Certificate) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO certificates (attempt_id, student_id, quiz_id, certificate_number, score, total_marks, percentage)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id) DO NOTHING
		 RETURNING id, issued_at`,
		c.AttemptID, c.StudentID, c.QuizID, c.CertificateNumber, c.Score, c.TotalMarks, c.Percentage,
	).Scan(&c.ID, &c.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_certificate_number" {
		return false, ErrCertificateNumberTaken
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanCertificateView(row pgx.Row) (*model.CertificateView, error) {
	v := &model.CertificateView{}
	err := row.Scan(&v.ID, &v.AttemptID, &v.StudentID, &v.QuizID, &v.CertificateNumber,
		&v.Score, &v.TotalMarks, &v.Percentage, &v.IssuedAt, &v.QuizTitle)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetByAttempt retrieves the certificate of an attempt.
func (r *CertificateRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.CertificateView, error) {
	return scanCertificateView(r.pool.QueryRow(ctx,
		`SELECT `+certificateColumns+`, q.title
		 FROM certificates c JOIN quizzes q ON q.id = c.quiz_id
		 WHERE c.attempt_id = $1`, attemptID))
}

// GetByNumber retrieves a certificate by its public number.
func (r *CertificateRepository) GetByNumber(ctx context.Context, number string) (*model.CertificateView, error) {
	return scanCertificateView(r.pool.QueryRow(ctx,
		`SELECT `+certificateColumns+`, q.title
		 FROM certificates c JOIN quizzes q ON q.id = c.quiz_id
		 WHERE c.certificate_number = $1`, number))
}

// ListByStudent retrieves every certificate of a student, newest first.
func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.CertificateView, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+certificateColumns+`, q.title
		 FROM certificates c JOIN quizzes q ON q.id = c.quiz_id
		 WHERE c.student_id = $1
		 ORDER BY c.issued_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CertificateView
	for rows.Next() {
		v, err := scanCertificateView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ListPending returns passed attempts that have no certificate.
func (r *CertificateRepository) ListPending(ctx context.Context, limit int) ([]model.PendingCertificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, a.quiz_id, a.score, a.total_marks
		 FROM quiz_attempts a
		 LEFT JOIN certificates c ON c.attempt_id = a.id
		 WHERE a.status = 'submitted' AND a.passed AND c.id IS NULL
		 ORDER BY a.submitted_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingCertificate
	for rows.Next() {
		var p model.PendingCertificate
		if err := rows.Scan(&p.AttemptID, &p.StudentID, &p.QuizID, &p.Score, &p.TotalMarks); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
