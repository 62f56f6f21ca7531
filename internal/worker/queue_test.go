package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type item struct {
	N int `json:"n"`
}

// recorder collects flushed batches.
type recorder struct {
	mu      sync.Mutex
	batches [][]item
	got     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) flush(_ context.Context, batch []item) []item {
	r.mu.Lock()
	r.batches = append(r.batches, append([]item(nil), batch...))
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recorder) all() []item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []item
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func newTestConsumer(t *testing.T, batchSize int, batchTimeout time.Duration, flush flushFunc[item]) (*queueConsumer[item], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &queueConsumer[item]{
		rdb:          rdb,
		queue:        "test_queue",
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		flush:        flush,
		log:          zerolog.Nop(),
	}, mr
}

func push(t *testing.T, mr *miniredis.Miniredis, key string, values ...string) {
	t.Helper()
	for _, v := range values {
		if _, err := mr.Push(key, v); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
}

func encode(t *testing.T, n int) string {
	t.Helper()
	b, err := json.Marshal(item{N: n})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func startConsumer(q *queueConsumer[item]) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.run(ctx)
	}()
	return cancel, done
}

func queueLen(mr *miniredis.Miniredis, key string) int {
	items, err := mr.List(key)
	if err != nil {
		return 0
	}
	return len(items)
}

func TestQueueConsumer_FlushesFullBatch(t *testing.T) {
	rec := newRecorder()
	q, mr := newTestConsumer(t, 3, time.Hour, rec.flush)
	push(t, mr, q.queue, encode(t, 1), encode(t, 2), encode(t, 3))

	cancel, done := startConsumer(q)
	defer func() { cancel(); <-done }()

	select {
	case <-rec.got:
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not flushed")
	}

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("flushed %d items, want 3", len(got))
	}
	for i, it := range got {
		if it.N != i+1 {
			t.Errorf("item %d = %d, want %d (FIFO order)", i, it.N, i+1)
		}
	}
}

func TestQueueConsumer_FlushesOnShutdown(t *testing.T) {
	rec := newRecorder()
	q, mr := newTestConsumer(t, 100, time.Hour, rec.flush)
	push(t, mr, q.queue, encode(t, 1), encode(t, 2))

	cancel, done := startConsumer(q)
	waitFor(t, "queue drain", func() bool { return queueLen(mr, q.queue) == 0 })
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if got := rec.all(); len(got) != 2 {
		t.Fatalf("flushed %d items on shutdown, want 2", len(got))
	}
}

func TestQueueConsumer_SkipsMalformed(t *testing.T) {
	rec := newRecorder()
	q, mr := newTestConsumer(t, 1, time.Hour, rec.flush)
	push(t, mr, q.queue, "{not json", encode(t, 7))

	cancel, done := startConsumer(q)
	defer func() { cancel(); <-done }()

	select {
	case <-rec.got:
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not flushed")
	}
	if got := rec.all(); len(got) != 1 || got[0].N != 7 {
		t.Fatalf("flushed %v, want only item 7", got)
	}
}

func TestQueueConsumer_Requeue(t *testing.T) {
	q, mr := newTestConsumer(t, 10, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.requeue(ctx, []item{{N: 1}, {N: 2}})
	}()

	waitFor(t, "requeued items", func() bool { return queueLen(mr, q.queue) == 2 })
	cancel() // cut the backoff short
	<-done

	items, _ := mr.List(q.queue)
	if items[0] != encode(t, 1) || items[1] != encode(t, 2) {
		t.Errorf("queue = %v", items)
	}
}
