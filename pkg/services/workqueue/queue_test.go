package workqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitForStatus(t *testing.T, q *Queue, taskID string, want TaskStatus) TaskSnapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("task %s never reached status %s", taskID, want)
		case <-time.After(5 * time.Millisecond):
		}
		if snap, ok := q.Status(taskID); ok && snap.Status == want {
			return snap
		}
	}
}

func TestQueueRunsTasks(t *testing.T) {
	q := New(2, zap.NewNop())
	defer q.Shutdown()

	var ran atomic.Int32
	task := NewFuncTask("count", "", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	require.NoError(t, q.Enqueue(task))
	waitForStatus(t, q, task.ID(), TaskStatusCompleted)
	assert.Equal(t, int32(1), ran.Load())
}

func TestQueueRecordsFailure(t *testing.T) {
	q := New(1, zap.NewNop())
	defer q.Shutdown()

	boom := errors.New("boom")
	task := NewFuncTask("failing", "", func(ctx context.Context) error {
		return boom
	})

	require.NoError(t, q.Enqueue(task))
	snap := waitForStatus(t, q, task.ID(), TaskStatusFailed)
	assert.Equal(t, "boom", snap.Error)
}

func TestQueueExclusivityKeyRejectsDuplicate(t *testing.T) {
	q := New(2, zap.NewNop())
	defer q.Shutdown()

	release := make(chan struct{})
	first := NewFuncTask("compress", "kg-1", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, q.Enqueue(first))

	second := NewFuncTask("compress", "kg-1", func(ctx context.Context) error {
		return nil
	})
	err := q.Enqueue(second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in flight")

	// A different key is unaffected.
	other := NewFuncTask("compress", "kg-2", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, q.Enqueue(other))

	close(release)
	waitForStatus(t, q, first.ID(), TaskStatusCompleted)

	// After completion the key is free again.
	third := NewFuncTask("compress", "kg-1", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, q.Enqueue(third))
	waitForStatus(t, q, third.ID(), TaskStatusCompleted)
}

func TestQueueStatusUnknownTask(t *testing.T) {
	q := New(1, zap.NewNop())
	defer q.Shutdown()

	_, ok := q.Status("nope")
	assert.False(t, ok)
}
