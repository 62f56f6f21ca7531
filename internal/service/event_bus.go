package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// MonitorEventType names the events streamed to the admin monitor.
type MonitorEventType string

const (
	MonitorAttemptStarted   MonitorEventType = "attempt_started"
	MonitorAnswerSaved      MonitorEventType = "answer_saved"
	MonitorAttemptSubmitted MonitorEventType = "attempt_submitted"
	MonitorViolation        MonitorEventType = "violation"
	MonitorSessionReset     MonitorEventType = "session_reset"
)

// MonitorEvent is published on the quiz monitor channel.
type MonitorEvent struct {
	Type       MonitorEventType `json:"type"`
	AttemptID  uuid.UUID        `json:"attempt_id"`
	StudentID  uuid.UUID        `json:"student_id"`
	Score      *int             `json:"score,omitempty"`
	Passed     *bool            `json:"passed,omitempty"`
	Kind       string           `json:"kind,omitempty"`
	Violations int              `json:"violations,omitempty"`
	At         time.Time        `json:"at"`
}

// EventBus fans attempt activity out to Redis: the monitor channel and the
// worker queues. Every method is best-effort and safe on a nil receiver.
type EventBus struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewEventBus creates a new EventBus.
func NewEventBus(rdb *redis.Client, log zerolog.Logger) *EventBus {
	return &EventBus{
		rdb: rdb,
		log: log.With().Str("component", "event_bus").Logger(),
	}
}

// PublishMonitor publishes ev to the quiz's monitor channel.
func (b *EventBus) PublishMonitor(ctx context.Context, quizID uuid.UUID, ev MonitorEvent) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, config.CacheKey.QuizMonitorChannel(quizID.String()), payload).Err(); err != nil {
		b.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Monitor publish failed")
	}
}

// EnqueueProctorEvent queues a proctor signal for persistence.
func (b *EventBus) EnqueueProctorEvent(ctx context.Context, ev model.ProctorEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.rdb.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, payload).Err(); err != nil {
		b.log.Warn().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Proctor event enqueue failed")
	}
}

// EnqueueActivity queues a session heartbeat.
func (b *EventBus) EnqueueActivity(ctx context.Context, attemptID uuid.UUID, at time.Time) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(model.SessionActivity{AttemptID: attemptID, SeenAt: at})
	if err != nil {
		return
	}
	if err := b.rdb.RPush(ctx, config.WorkerKey.SessionActivityQueue, payload).Err(); err != nil {
		b.log.Debug().Err(err).Str("attempt_id", attemptID.String()).Msg("Activity enqueue failed")
	}
}
