package processor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingQueue_RunsItems(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	queue := NewProcessingQueue(4, 2, func(item *QueueItem) {
		mu.Lock()
		seen = append(seen, item.JobID)
		mu.Unlock()
	}, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, queue.Enqueue(&QueueItem{JobID: id}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	pending, err := queue.Shutdown(time.Second)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
}

func TestProcessingQueue_RecoversPanics(t *testing.T) {
	panicked := make(chan string, 1)
	queue := NewProcessingQueue(1, 1, func(item *QueueItem) {
		panic("boom")
	}, func(item *QueueItem, r any) {
		panicked <- item.JobID
	})
	defer queue.Shutdown(time.Second)

	require.True(t, queue.Enqueue(&QueueItem{JobID: "p"}))

	select {
	case id := <-panicked:
		assert.Equal(t, "p", id)
	case <-time.After(2 * time.Second):
		t.Fatal("panic handler not called")
	}

	// The worker survives and keeps serving.
	require.True(t, queue.Enqueue(&QueueItem{JobID: "q"}))
	select {
	case id := <-panicked:
		assert.Equal(t, "q", id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after panic")
	}
}

func TestProcessingQueue_FullAndShutdown(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	queue := NewProcessingQueue(1, 1, func(item *QueueItem) {
		started <- struct{}{}
		<-release
	}, nil)

	require.True(t, queue.Enqueue(&QueueItem{JobID: "running"}))
	<-started
	require.True(t, queue.Enqueue(&QueueItem{JobID: "waiting"}))
	assert.False(t, queue.Enqueue(&QueueItem{JobID: "rejected"}))

	stats := queue.GetQueueStats()
	assert.Equal(t, 1, stats.CurrentSize)
	assert.Equal(t, 1, stats.MaxCapacity)
	assert.InDelta(t, 100.0, stats.UtilizationPercent, 1e-9)

	close(release)
	pending, err := queue.Shutdown(time.Second)
	require.NoError(t, err)
	assert.False(t, queue.IsRunning())
	assert.False(t, queue.Enqueue(&QueueItem{JobID: "late"}))

	// The worker may pick up "waiting" before it sees the shutdown signal.
	for _, item := range pending {
		assert.Equal(t, "waiting", item.JobID)
	}

	again, err := queue.Shutdown(time.Second)
	assert.NoError(t, err)
	assert.Nil(t, again)
}
