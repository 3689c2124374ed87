package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/obs"
)

func TestEnqueueAndNext(t *testing.T) {
	q := New(Config{})
	require.NoError(t, q.Enqueue("o1"))

	job, ok := q.Next(t.Context())
	require.True(t, ok)
	assert.Equal(t, "o1", job.OrderID)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.False(t, job.Final())
}

func TestNextContextDone(t *testing.T) {
	q := New(Config{})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, ok := q.Next(ctx)
	assert.False(t, ok)
}

func TestEnqueueFullQueue(t *testing.T) {
	q := New(Config{Capacity: 1})
	require.NoError(t, q.Enqueue("o1"))
	assert.ErrorIs(t, q.Enqueue("o2"), ErrQueueFull)
}

func TestEnqueueClosedQueue(t *testing.T) {
	q := New(Config{})
	q.Close()
	assert.ErrorIs(t, q.Enqueue("o1"), ErrQueueClosed)
}

func TestBackoffDoubles(t *testing.T) {
	q := New(Config{BaseDelay: time.Second})
	assert.Equal(t, time.Second, q.Backoff(1))
	assert.Equal(t, 2*time.Second, q.Backoff(2))
	assert.Equal(t, 4*time.Second, q.Backoff(3))
}

func TestBackoffCapped(t *testing.T) {
	q := New(Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second})
	assert.Equal(t, 3*time.Second, q.Backoff(3))
	assert.Equal(t, 3*time.Second, q.Backoff(40))
}

func TestReportFailureRequeuesWithIncrementedAttempt(t *testing.T) {
	metrics := obs.NewMetrics()
	q := New(Config{BaseDelay: time.Millisecond, Metrics: metrics})
	require.NoError(t, q.Enqueue("o1"))

	job, ok := q.Next(t.Context())
	require.True(t, ok)
	q.Report(job, errors.New("boom"))

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	retry, ok := q.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "o1", retry.OrderID)
	assert.Equal(t, 2, retry.Attempt)
	assert.Equal(t, uint64(1), metrics.Snapshot().RetriedJobs)
}

func TestReportRetrySurvivesFullQueue(t *testing.T) {
	q := New(Config{Capacity: 1, BaseDelay: time.Millisecond})
	t.Cleanup(q.Close)
	require.NoError(t, q.Enqueue("o1"))

	job, ok := q.Next(t.Context())
	require.True(t, ok)

	// another order takes the only slot before the backoff timer fires
	require.NoError(t, q.Enqueue("o2"))
	q.Report(job, errors.New("boom"))

	// the retry must wait for the slot, not vanish
	time.Sleep(20 * time.Millisecond)
	blocker, ok := q.Next(t.Context())
	require.True(t, ok)
	assert.Equal(t, "o2", blocker.OrderID)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	retry, ok := q.Next(ctx)
	require.True(t, ok, "retry must be re-enqueued once capacity frees up")
	assert.Equal(t, "o1", retry.OrderID)
	assert.Equal(t, 2, retry.Attempt)
}

func TestCloseReleasesBlockedRetry(t *testing.T) {
	metrics := obs.NewMetrics()
	q := New(Config{Capacity: 1, BaseDelay: time.Millisecond, Metrics: metrics})
	require.NoError(t, q.Enqueue("o1"))

	job, ok := q.Next(t.Context())
	require.True(t, ok)
	require.NoError(t, q.Enqueue("o2"))
	q.Report(job, errors.New("boom"))

	time.Sleep(20 * time.Millisecond)
	q.Close()

	require.Eventually(t, func() bool {
		return metrics.Snapshot().DeadJobs == 1
	}, time.Second, 10*time.Millisecond, "close must unblock the waiting retry")
}

func TestReportFinalAttemptDropsJob(t *testing.T) {
	metrics := obs.NewMetrics()
	q := New(Config{BaseDelay: time.Millisecond, Metrics: metrics})

	q.Report(Job{OrderID: "o1", Attempt: 3, MaxAttempts: 3}, errors.New("boom"))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, ok := q.Next(ctx)
	assert.False(t, ok, "exhausted job must not be re-enqueued")
	assert.Equal(t, uint64(1), metrics.Snapshot().DeadJobs)
}

func TestReportPermanentDropsImmediately(t *testing.T) {
	metrics := obs.NewMetrics()
	q := New(Config{BaseDelay: time.Millisecond, Metrics: metrics})

	q.Report(Job{OrderID: "o1", Attempt: 1, MaxAttempts: 3}, Permanent(errors.New("missing")))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, ok := q.Next(ctx)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), metrics.Snapshot().DeadJobs)
	assert.Equal(t, uint64(0), metrics.Snapshot().RetriedJobs)
}

func TestReportSuccess(t *testing.T) {
	metrics := obs.NewMetrics()
	q := New(Config{Metrics: metrics})

	q.Report(Job{OrderID: "o1", Attempt: 1, MaxAttempts: 3}, nil)
	assert.Equal(t, uint64(1), metrics.Snapshot().CompletedJobs)
}

func TestIsPermanent(t *testing.T) {
	base := errors.New("gone")
	assert.True(t, IsPermanent(Permanent(base)))
	assert.False(t, IsPermanent(base))
	assert.True(t, errors.Is(Permanent(base), base))
	assert.Nil(t, Permanent(nil))
}

func TestSingleOwnerDequeue(t *testing.T) {
	q := New(Config{Capacity: 64})
	const jobs = 32
	for i := range jobs {
		require.NoError(t, q.Enqueue(string(rune('a'+i))))
	}

	got := make(chan string, jobs)
	for range 4 {
		go func() {
			for {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				job, ok := q.Next(ctx)
				cancel()
				if !ok {
					return
				}
				got <- job.OrderID
			}
		}()
	}

	seen := make(map[string]int, jobs)
	for range jobs {
		select {
		case id := <-got:
			seen[id]++
		case <-time.After(time.Second):
			t.Fatal("timed out draining queue")
		}
	}
	for id, n := range seen {
		assert.Equalf(t, 1, n, "order %s dequeued %d times", id, n)
	}
}
