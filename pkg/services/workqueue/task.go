// Package workqueue runs background maintenance tasks, one at a time per
// exclusivity key.
package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is the interface all queue tasks implement.
type Task interface {
	// ID returns a unique identifier for this task instance.
	ID() string

	// Name returns a human-readable name for logs and status APIs.
	Name() string

	// ExclusivityKey groups tasks that must not run concurrently. Tasks
	// sharing a key run one at a time; an empty key means no exclusivity.
	ExclusivityKey() string

	// Execute runs the task.
	Execute(ctx context.Context) error
}

// TaskState holds the runtime state of a queued task.
type TaskState struct {
	Task        Task
	Status      TaskStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       error

	mu sync.RWMutex
}

// NewTaskState wraps a task in its initial pending state.
func NewTaskState(task Task) *TaskState {
	return &TaskState{
		Task:   task,
		Status: TaskStatusPending,
	}
}

// GetStatus returns the current status.
func (ts *TaskState) GetStatus() TaskStatus {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.Status
}

// SetStatus updates the status and timestamps.
func (ts *TaskState) SetStatus(status TaskStatus) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.Status = status
	now := time.Now()

	switch status {
	case TaskStatusRunning:
		ts.StartedAt = &now
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		ts.CompletedAt = &now
	}
}

// SetError records the task's failure.
func (ts *TaskState) SetError(err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.Error = err
}

// Snapshot returns an immutable copy for serialization.
func (ts *TaskState) Snapshot() TaskSnapshot {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var errMsg string
	if ts.Error != nil {
		errMsg = ts.Error.Error()
	}

	return TaskSnapshot{
		ID:          ts.Task.ID(),
		Name:        ts.Task.Name(),
		Status:      ts.Status,
		StartedAt:   ts.StartedAt,
		CompletedAt: ts.CompletedAt,
		Error:       errMsg,
	}
}

// TaskSnapshot is an immutable view of task state.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// BaseTask provides common task identity. Embed it in concrete tasks.
type BaseTask struct {
	id   string
	name string
	key  string
}

// NewBaseTask creates the identity portion of a task.
func NewBaseTask(name, exclusivityKey string) BaseTask {
	return BaseTask{
		id:   uuid.New().String(),
		name: name,
		key:  exclusivityKey,
	}
}

// ID returns the task ID.
func (t BaseTask) ID() string { return t.id }

// Name returns the task name.
func (t BaseTask) Name() string { return t.name }

// ExclusivityKey returns the task's exclusivity key.
func (t BaseTask) ExclusivityKey() string { return t.key }

// FuncTask wraps a closure as a Task.
type FuncTask struct {
	BaseTask
	Fn func(ctx context.Context) error
}

// NewFuncTask creates a task from a closure.
func NewFuncTask(name, exclusivityKey string, fn func(ctx context.Context) error) *FuncTask {
	return &FuncTask{
		BaseTask: NewBaseTask(name, exclusivityKey),
		Fn:       fn,
	}
}

// Execute runs the wrapped closure.
func (t *FuncTask) Execute(ctx context.Context) error {
	return t.Fn(ctx)
}
