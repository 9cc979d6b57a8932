package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	var got []int

	q := New("test", 8, func(ctx context.Context, job int) error {
		mu.Lock()
		got = append(got, job)
		mu.Unlock()
		return nil
	}, nil)
	q.Start(context.Background(), 2)

	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(i))
	}
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 5)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := New("test", 1, func(ctx context.Context, job int) error {
		<-release
		return nil
	}, nil)
	q.Start(context.Background(), 1)

	// One job occupies the worker, one fills the buffer; drain timing for
	// the first job is the only nondeterminism, so allow a moment.
	require.True(t, q.Enqueue(1))
	time.Sleep(50 * time.Millisecond)
	require.True(t, q.Enqueue(2))
	assert.False(t, q.Enqueue(3))

	close(release)
	q.Close()
}

func TestQueueLogsAndContinuesOnError(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	q := New("test", 8, func(ctx context.Context, job int) error {
		mu.Lock()
		processed++
		mu.Unlock()
		if job == 1 {
			return errors.New("boom")
		}
		return nil
	}, nil)
	q.Start(context.Background(), 1)

	require.True(t, q.Enqueue(1))
	require.True(t, q.Enqueue(2))
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, processed)
}
