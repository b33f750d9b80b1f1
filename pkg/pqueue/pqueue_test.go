package pqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func item(id string, priority int, enqueue time.Time) *domain.QueueItem {
	return &domain.QueueItem{ID: id, Priority: priority, EnqueueTime: enqueue}
}

func TestPopOrdersByPriorityDescThenFIFO(t *testing.T) {
	q := New(0)
	now := time.Now()
	require.NoError(t, q.Push(item("low", 1, now)))
	require.NoError(t, q.Push(item("high", 10, now.Add(time.Millisecond))))
	require.NoError(t, q.Push(item("high2", 10, now)))

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "high2", first.ID, "equal priority, earlier enqueue time wins")

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "high", second.ID)

	third, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "low", third.ID)
}

func TestPushRejectsOverCapacity(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Push(item("a", 1, time.Now())))
	assert.ErrorIs(t, q.Push(item("b", 1, time.Now())), ErrFull)
}

func TestEvictExpiredRemovesPastDeadlineItems(t *testing.T) {
	q := New(0)
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)
	expiredItem := item("expired", 5, time.Now())
	expiredItem.Deadline = &past
	liveItem := item("live", 5, time.Now())
	liveItem.Deadline = &future

	require.NoError(t, q.Push(expiredItem))
	require.NoError(t, q.Push(liveItem))

	expired := q.EvictExpired(time.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, "expired", expired[0].ID)
	assert.Equal(t, 1, q.Len())
}

func TestBackpressureLevelIsZeroWhenUnbounded(t *testing.T) {
	q := New(0)
	assert.Equal(t, 0.0, q.BackpressureLevel())
}

func TestBackpressureLevelScalesWithCapacity(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Push(item("a", 1, time.Now())))
	require.NoError(t, q.Push(item("b", 1, time.Now())))
	assert.Equal(t, 0.5, q.BackpressureLevel())
}
