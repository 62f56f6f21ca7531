package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

var proctorEventColumns = []string{"attempt_id", "quiz_id", "student_id", "kind", "violation", "count", "recorded_at"}

// ProctorEventRepository stores the proctor audit trail.
type ProctorEventRepository struct {
	pool *pgxpool.Pool
}

// NewProctorEventRepository creates a new ProctorEventRepository.
func NewProctorEventRepository(pool *pgxpool.Pool) *ProctorEventRepository {
	return &ProctorEventRepository{pool: pool}
}

// CopyMany bulk-inserts events with COPY.
func (r *ProctorEventRepository) CopyMany(ctx context.Context, events []model.ProctorEvent) (int64, error) {
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"proctor_events"},
		proctorEventColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.AttemptID, e.QuizID, e.StudentID, e.Kind, e.Violation, e.Count, e.RecordedAt}, nil
		}),
	)
}

// Insert stores a single event.
func (r *ProctorEventRepository) Insert(ctx context.Context, e model.ProctorEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctor_events (attempt_id, quiz_id, student_id, kind, violation, count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.AttemptID, e.QuizID, e.StudentID, e.Kind, e.Violation, e.Count, e.RecordedAt,
	)
	return err
}
