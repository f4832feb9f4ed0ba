package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusPending    Status = "pending"    // Registered, worker not started
	StatusProcessing Status = "processing" // Worker running
	StatusCompleted  Status = "completed"  // Terminal, Result set
	StatusError      Status = "error"      // Terminal, Error set
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Task is a snapshot of one background job. Result and PartialResult are
// whatever the task function produced; callers know the concrete type.
type Task struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	Progress      float64   `json:"progress"` // 0.0 to 1.0
	Result        any       `json:"result,omitempty"`
	PartialResult any       `json:"partial_result,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
}

// ProgressFunc reports fractional progress and an optional partial result
// from inside a running task.
type ProgressFunc func(fraction float64, partial any)

// TaskFunc is the work a task performs. The context carries the task's
// deadline; long-running work should honor it.
type TaskFunc func(ctx context.Context, report ProgressFunc) (any, error)

// Callback observes a task reaching a terminal state. It receives a
// snapshot and runs outside the engine lock.
type Callback func(Task)

// Engine runs background tasks with deadlines and tracks their state for
// polling. All methods are safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	callbacks map[string][]Callback
	logger    *zap.Logger
}

// NewEngine creates an empty task engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		tasks:     make(map[string]*Task),
		callbacks: make(map[string][]Callback),
		logger:    logger,
	}
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// CreateTask registers the task under id and starts it in the background.
// When the timeout elapses before fn returns, the task transitions to
// error and fn's eventual result is discarded. Callbacks fire once, when
// the task reaches a terminal state.
func (e *Engine) CreateTask(id string, fn TaskFunc, timeout time.Duration, callbacks ...Callback) error {
	if id == "" {
		return fmt.Errorf("task id is required")
	}
	if fn == nil {
		return fmt.Errorf("task function is required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	e.mu.Lock()
	if _, exists := e.tasks[id]; exists {
		e.mu.Unlock()
		return fmt.Errorf("task %s already exists", id)
	}
	e.tasks[id] = &Task{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if len(callbacks) > 0 {
		e.callbacks[id] = callbacks
	}
	e.mu.Unlock()

	go e.run(id, fn, timeout)
	return nil
}

type outcome struct {
	result any
	err    error
}

func (e *Engine) run(id string, fn TaskFunc, timeout time.Duration) {
	e.mu.Lock()
	if t, ok := e.tasks[id]; ok && t.Status == StatusPending {
		t.Status = StatusProcessing
		t.StartedAt = time.Now()
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// The worker writes into a buffered channel so that an orphaned
	// worker, one that outlives its deadline, can still finish and exit
	// without anyone receiving.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		result, err := fn(ctx, func(fraction float64, partial any) {
			e.UpdateProgress(id, fraction, partial)
		})
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			e.finish(id, nil, o.err)
		} else {
			e.finish(id, o.result, nil)
		}
	case <-ctx.Done():
		e.logger.Warn("task deadline exceeded",
			zap.String("task", id), zap.Duration("timeout", timeout))
		e.finish(id, nil, fmt.Errorf("task timed out after %s", timeout))
	}
}

// finish moves the task to a terminal state exactly once. Later calls,
// including an orphaned worker's eventual completion, are no-ops.
func (e *Engine) finish(id string, result any, err error) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok || t.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	if err != nil {
		t.Status = StatusError
		t.Error = err.Error()
	} else {
		t.Status = StatusCompleted
		t.Result = result
		t.Progress = 1.0
	}
	t.CompletedAt = time.Now()
	snapshot := *t
	callbacks := e.callbacks[id]
	delete(e.callbacks, id)
	e.mu.Unlock()

	for _, cb := range callbacks {
		e.invoke(cb, snapshot)
	}
}

// invoke shields the engine from a misbehaving callback.
func (e *Engine) invoke(cb Callback, snapshot Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task callback panicked",
				zap.String("task", snapshot.ID), zap.Any("panic", r))
		}
	}()
	cb(snapshot)
}

// UpdateProgress records progress for a running task. Updates to a task
// that already finished are dropped.
func (e *Engine) UpdateProgress(id string, fraction float64, partial any) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Progress = fraction
	if partial != nil {
		t.PartialResult = partial
	}
}

// GetTask returns a snapshot of the task's current state.
func (e *Engine) GetTask(id string) (Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// CleanupOldTasks drops tasks created more than maxAge ago, regardless
// of state, and returns how many were removed. A worker finishing after
// its task was evicted is a no-op in finish.
func (e *Engine) CleanupOldTasks(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, t := range e.tasks {
		if t.CreatedAt.Before(cutoff) {
			delete(e.tasks, id)
			delete(e.callbacks, id)
			removed++
		}
	}
	return removed
}
