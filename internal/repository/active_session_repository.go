package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ErrSessionConflict is returned when the attempt already has an active session.
var ErrSessionConflict = errors.New("attempt already has an active session")

// ActiveSessionRepository handles active_sessions data access.
type ActiveSessionRepository struct {
	pool *pgxpool.Pool
}

// NewActiveSessionRepository creates a new ActiveSessionRepository.
func NewActiveSessionRepository(pool *pgxpool.Pool) *ActiveSessionRepository {
	return &ActiveSessionRepository{pool: pool}
}

// Create inserts an active session. At most one active row may exist per
// attempt; a second insert returns ErrSessionConflict.
func (r *ActiveSessionRepository) Create(ctx context.Context, s *model.ActiveSession) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO active_sessions (student_id, quiz_id, attempt_id, token_hash, is_active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (attempt_id) WHERE is_active DO NOTHING
		 RETURNING id, created_at, last_activity`,
		s.StudentID, s.QuizID, s.AttemptID, s.TokenHash,
	).Scan(&s.ID, &s.CreatedAt, &s.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionConflict
	}
	if err != nil {
		return err
	}
	s.IsActive = true
	return nil
}

// FindActive returns the active session of an attempt.
func (r *ActiveSessionRepository) FindActive(ctx context.Context, attemptID uuid.UUID) (*model.ActiveSession, error) {
	s := &model.ActiveSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, quiz_id, attempt_id, token_hash, is_active, created_at, last_activity
		 FROM active_sessions
		 WHERE attempt_id = $1 AND is_active`, attemptID,
	).Scan(&s.ID, &s.StudentID, &s.QuizID, &s.AttemptID, &s.TokenHash, &s.IsActive, &s.CreatedAt, &s.LastActivity)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DeactivateByAttempt marks every active session of the attempt inactive.
// Calling it again is a no-op.
func (r *ActiveSessionRepository) DeactivateByAttempt(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE active_sessions SET is_active = FALSE WHERE attempt_id = $1 AND is_active`, attemptID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TouchMany bulk-updates last_activity for active sessions, keeping the later timestamp.
func (r *ActiveSessionRepository) TouchMany(ctx context.Context, attemptIDs []uuid.UUID, seenAt []time.Time) error {
	if len(attemptIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE active_sessions AS s
		 SET last_activity = GREATEST(s.last_activity, t.seen_at)
		 FROM UNNEST($1::uuid[], $2::timestamptz[]) AS t (attempt_id, seen_at)
		 WHERE s.attempt_id = t.attempt_id AND s.is_active`,
		attemptIDs, seenAt,
	)
	return err
}
