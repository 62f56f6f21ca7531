package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ActivityToucher updates session last-activity timestamps in bulk.
type ActivityToucher interface {
	TouchMany(ctx context.Context, attemptIDs []uuid.UUID, seenAt []time.Time) error
}

// ActivityWorker coalesces session heartbeats and writes them in one UPDATE per batch.
type ActivityWorker struct {
	sessions ActivityToucher
	consumer *queueConsumer[model.SessionActivity]
	log      zerolog.Logger
}

// NewActivityWorker creates a new ActivityWorker.
func NewActivityWorker(sessions ActivityToucher, rdb *redis.Client, log zerolog.Logger) *ActivityWorker {
	w := &ActivityWorker{
		sessions: sessions,
		log:      log.With().Str("component", "activity_worker").Logger(),
	}
	w.consumer = &queueConsumer[model.SessionActivity]{
		rdb:          rdb,
		queue:        config.WorkerKey.SessionActivityQueue,
		batchSize:    BatchSize * 4,
		batchTimeout: BatchTimeout,
		flush:        w.flush,
		log:          w.log,
	}
	return w
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *ActivityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ActivityWorker started")
	w.consumer.run(ctx)
	w.log.Info().Msg("ActivityWorker stopped")
}

// coalesce keeps the latest heartbeat per attempt.
func coalesce(batch []model.SessionActivity) ([]uuid.UUID, []time.Time) {
	latest := make(map[uuid.UUID]time.Time, len(batch))
	order := make([]uuid.UUID, 0, len(batch))
	for _, a := range batch {
		seen, ok := latest[a.AttemptID]
		if !ok {
			order = append(order, a.AttemptID)
		}
		if !ok || a.SeenAt.After(seen) {
			latest[a.AttemptID] = a.SeenAt
		}
	}

	seenAt := make([]time.Time, len(order))
	for i, id := range order {
		seenAt[i] = latest[id]
	}
	return order, seenAt
}

func (w *ActivityWorker) flush(ctx context.Context, batch []model.SessionActivity) []model.SessionActivity {
	ids, seenAt := coalesce(batch)
	if err := w.sessions.TouchMany(ctx, ids, seenAt); err != nil {
		w.log.Error().Err(err).Int("attempts", len(ids)).Msg("Activity update failed, requeueing")
		retry := make([]model.SessionActivity, len(ids))
		for i := range ids {
			retry[i] = model.SessionActivity{AttemptID: ids[i], SeenAt: seenAt[i]}
		}
		return retry
	}
	w.log.Debug().Int("attempts", len(ids)).Msg("Session activity flushed")
	return nil
}
