package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "j-1"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueDropsAfterMaxRetries(t *testing.T) {
	dropped := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnDrop:     func(j Job, err error) { dropped <- j },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "j-1"}))

	select {
	case j := <-dropped:
		assert.Equal(t, "j-1", j.ID)
		assert.Equal(t, 2, j.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job not dropped")
	}
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.TryEnqueue(Job{}), ErrNotRunning)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.TryEnqueue(Job{}), ErrNotRunning)
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{}), ErrNotRunning)
}

func TestQueueTryEnqueueReportsFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1, DrainTimeout: time.Second})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	require.NoError(t, q.TryEnqueue(Job{ID: "running"}))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "buffered"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "overflow"}), ErrQueueFull)
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})
	q.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.TryEnqueue(Job{ID: id}))
	}
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3)
}

func TestQueueBackoffIsCapped(t *testing.T) {
	q := NewQueue("test", nil, QueueConfig{RetryDelay: 10 * time.Millisecond, MaxRetryDelay: 50 * time.Millisecond})
	assert.Equal(t, 10*time.Millisecond, q.backoff(1))
	assert.Equal(t, 20*time.Millisecond, q.backoff(2))
	assert.Equal(t, 40*time.Millisecond, q.backoff(3))
	assert.Equal(t, 50*time.Millisecond, q.backoff(4))
}

func TestQueueStartedDetachedKeepsRunningAfterCancel(t *testing.T) {
	processed := make(chan string, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		processed <- job.ID
		return nil
	}, QueueConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(context.WithoutCancel(ctx))
	defer q.Stop()

	cancel()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, q.TryEnqueue(Job{ID: "late"}))
	select {
	case id := <-processed:
		assert.Equal(t, "late", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job enqueued after cancel never ran")
	}
}

func TestQueueStopsWithStartContext(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return errors.Is(q.TryEnqueue(Job{ID: "x"}), ErrNotRunning)
	}, time.Second, 5*time.Millisecond)
}
