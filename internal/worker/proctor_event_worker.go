package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ProctorEventSink persists proctor events.
type ProctorEventSink interface {
	CopyMany(ctx context.Context, events []model.ProctorEvent) (int64, error)
	Insert(ctx context.Context, e model.ProctorEvent) error
}

// ProctorEventWorker moves queued proctor signals into the audit table.
type ProctorEventWorker struct {
	sink     ProctorEventSink
	consumer *queueConsumer[model.ProctorEvent]
	log      zerolog.Logger
}

// NewProctorEventWorker creates a new ProctorEventWorker.
func NewProctorEventWorker(sink ProctorEventSink, rdb *redis.Client, log zerolog.Logger) *ProctorEventWorker {
	w := &ProctorEventWorker{
		sink: sink,
		log:  log.With().Str("component", "proctor_event_worker").Logger(),
	}
	w.consumer = &queueConsumer[model.ProctorEvent]{
		rdb:          rdb,
		queue:        config.WorkerKey.PersistProctorEventsQueue,
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		flush:        w.flush,
		log:          w.log,
	}
	return w
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *ProctorEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctorEventWorker started")
	w.consumer.run(ctx)
	w.log.Info().Msg("ProctorEventWorker stopped")
}

// flush tries COPY first, then row-by-row so one bad row cannot block the batch.
func (w *ProctorEventWorker) flush(ctx context.Context, batch []model.ProctorEvent) []model.ProctorEvent {
	_, err := w.sink.CopyMany(ctx, batch)
	if err == nil {
		return nil
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var retry []model.ProctorEvent
	for _, e := range batch {
		if err := w.sink.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Insert failed, requeueing")
			retry = append(retry, e)
		}
	}
	return retry
}
