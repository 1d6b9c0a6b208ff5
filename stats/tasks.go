package stats

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Executor runs tasks away from the caller's goroutine.
type Executor interface {
	Submit(task func())
}

// Inline runs every task on the submitting goroutine. Use it only where the caller holds
// no lock of its own, such as in tests.
type Inline struct{}

// Submit runs task.
func (Inline) Submit(task func()) {
	task()
}

// TaskQueue runs tasks on a fixed set of workers. Submit never blocks: when the queue is
// full the task gets a goroutine of its own.
type TaskQueue struct {
	logger *slog.Logger
	tasks  chan func()
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewTaskQueue starts workers goroutines draining a queue of size tasks.
func NewTaskQueue(workers, size int, logger *slog.Logger) *TaskQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &TaskQueue{
		logger: logger,
		tasks:  make(chan func(), size),
	}
	q.wg.Add(workers)
	for range workers {
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				q.run(task)
			}
		}()
	}
	return q
}

// Submit queues task. Tasks submitted after Close are dropped.
func (q *TaskQueue) Submit(task func()) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("task queue closed, dropping task")
		return
	}

	select {
	case q.tasks <- task:
	default:
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(task)
		}()
	}
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *TaskQueue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	task()
}
