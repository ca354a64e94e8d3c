package workqueue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Queue executes tasks on a fixed pool of workers. Tasks that share an
// exclusivity key run one at a time; a task whose key is already queued or
// running is rejected rather than stacked.
type Queue struct {
	logger  *zap.Logger
	tasks   chan *TaskState
	workers int

	mu     sync.Mutex
	active map[string]bool // exclusivity keys queued or running
	states map[string]*TaskState

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	shutdown sync.Once
}

// New creates a queue with the given worker count and starts its workers.
func New(workers int, logger *zap.Logger) *Queue {
	if workers < 1 {
		workers = 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		logger:  logger.Named("workqueue"),
		tasks:   make(chan *TaskState, 256),
		workers: workers,
		active:  make(map[string]bool),
		states:  make(map[string]*TaskState),
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	return q
}

// Enqueue submits a task. It returns an error when the queue is full or a
// task with the same exclusivity key is already pending or running.
func (q *Queue) Enqueue(task Task) error {
	state := NewTaskState(task)
	key := task.ExclusivityKey()

	q.mu.Lock()
	if key != "" && q.active[key] {
		q.mu.Unlock()
		return fmt.Errorf("task with key %q already in flight", key)
	}
	if key != "" {
		q.active[key] = true
	}
	q.states[task.ID()] = state
	q.mu.Unlock()

	select {
	case q.tasks <- state:
		return nil
	default:
		q.release(task)
		return fmt.Errorf("work queue full")
	}
}

// Status returns a snapshot of a known task, or false.
func (q *Queue) Status(taskID string) (TaskSnapshot, bool) {
	q.mu.Lock()
	state, ok := q.states[taskID]
	q.mu.Unlock()
	if !ok {
		return TaskSnapshot{}, false
	}
	return state.Snapshot(), true
}

// Shutdown stops accepting work, cancels the worker context, and waits for
// in-flight tasks to finish.
func (q *Queue) Shutdown() {
	q.shutdown.Do(func() {
		q.cancel()
		close(q.tasks)
		q.wg.Wait()
	})
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for state := range q.tasks {
		if ctx.Err() != nil {
			state.SetStatus(TaskStatusCancelled)
			q.release(state.Task)
			continue
		}

		state.SetStatus(TaskStatusRunning)
		q.logger.Debug("task started",
			zap.String("task_id", state.Task.ID()),
			zap.String("name", state.Task.Name()))

		if err := state.Task.Execute(ctx); err != nil {
			state.SetError(err)
			state.SetStatus(TaskStatusFailed)
			q.logger.Warn("task failed",
				zap.String("task_id", state.Task.ID()),
				zap.String("name", state.Task.Name()),
				zap.Error(err))
		} else {
			state.SetStatus(TaskStatusCompleted)
			q.logger.Debug("task completed",
				zap.String("task_id", state.Task.ID()),
				zap.String("name", state.Task.Name()))
		}

		q.release(state.Task)
	}
}

func (q *Queue) release(task Task) {
	if key := task.ExclusivityKey(); key != "" {
		q.mu.Lock()
		delete(q.active, key)
		q.mu.Unlock()
	}
}
