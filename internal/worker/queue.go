package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	redisRetryDelay = 3 * time.Second
	requeueBackoff  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// flushFunc persists a batch and returns the items that must be retried.
// It must not retain batch.
type flushFunc[T any] func(ctx context.Context, batch []T) (retry []T)

// queueConsumer drains a Redis list in batches: flush on size or age,
// requeue what failed, flush the buffer on shutdown.
type queueConsumer[T any] struct {
	rdb          *redis.Client
	queue        string
	batchSize    int
	batchTimeout time.Duration
	flush        flushFunc[T]
	log          zerolog.Logger
}

func (q *queueConsumer[T]) run(ctx context.Context) {
	buffer := make([]T, 0, q.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= q.batchSize || time.Since(lastFlush) >= q.batchTimeout) {
			q.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			q.shutdown(buffer)
			return
		default:
		}

		// Blocks up to PollTimeout; returns at once when data exists.
		result, err := q.rdb.BLPop(ctx, PollTimeout, q.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				q.shutdown(buffer)
				return
			}
			q.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			select {
			case <-ctx.Done():
			case <-time.After(redisRetryDelay):
			}
			continue
		}

		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed JSON can never succeed.
			q.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

func (q *queueConsumer[T]) flushSafe(ctx context.Context, batch []T) {
	if retry := q.flush(ctx, batch); len(retry) > 0 {
		q.requeue(ctx, retry)
	}
}

func (q *queueConsumer[T]) requeue(ctx context.Context, items []T) {
	pipe := q.rdb.Pipeline()
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, q.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}

	q.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	select {
	case <-ctx.Done():
	case <-time.After(requeueBackoff):
	}
}

func (q *queueConsumer[T]) shutdown(buffer []T) {
	if len(buffer) == 0 {
		return
	}
	q.log.Info().Int("count", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	q.flushSafe(ctx, buffer)
}
