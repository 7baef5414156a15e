package keg

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/iudanet/kegkeeper/internal/errs"
)

// Task is one unit of work for a TaskQueue.
type Task struct {
	Run  func(ctx context.Context) error
	done chan error
	Name string
}

// TaskQueue runs tasks one at a time in submission order on a single worker
// goroutine.
type TaskQueue struct {
	tasks  chan Task
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

// DefaultQueueDepth is how many tasks may wait behind the running one.
const DefaultQueueDepth = 64

// NewTaskQueue starts the worker.
func NewTaskQueue(depth int, logger *slog.Logger) *TaskQueue {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &TaskQueue{
		tasks:  make(chan Task, depth),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	q.wg.Add(1)
	go q.work()
	return q
}

func (q *TaskQueue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case t := <-q.tasks:
			if q.ctx.Err() != nil {
				t.done <- ErrQueueClosed
				return
			}
			err := t.Run(q.ctx)
			if err != nil {
				q.logger.Debug("queued task failed", "task", t.Name, "error", err)
			}
			t.done <- err
		}
	}
}

// Push enqueues a task and returns a channel that receives its result. It
// blocks while the queue is full.
func (q *TaskQueue) Push(ctx context.Context, name string, run func(ctx context.Context) error) (<-chan error, error) {
	t := Task{Name: name, Run: run, done: make(chan error, 1)}
	select {
	case <-q.quit:
		return nil, ErrQueueClosed
	default:
	}

	select {
	case q.tasks <- t:
		return t.done, nil
	case <-q.quit:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryPush enqueues without blocking and reports whether the task was accepted.
func (q *TaskQueue) TryPush(name string, run func(ctx context.Context) error) bool {
	select {
	case <-q.quit:
		return false
	default:
	}

	t := Task{Name: name, Run: run, done: make(chan error, 1)}
	select {
	case q.tasks <- t:
		return true
	default:
		return false
	}
}

// Do enqueues a task and waits for its result. The error is normalized
// (see errs.Normalize).
func (q *TaskQueue) Do(ctx context.Context, name string, run func(ctx context.Context) error) error {
	done, err := q.Push(ctx, name, run)
	if err != nil {
		return errs.Normalize(err)
	}
	select {
	case err := <-done:
		return errs.Normalize(err)
	case <-ctx.Done():
		return errs.Normalize(ctx.Err())
	}
}

// Close cancels the running task, drops queued ones and stops the worker.
func (q *TaskQueue) Close() {
	q.once.Do(func() {
		q.cancel()
		close(q.quit)
	})
	q.wg.Wait()

	// оставшиеся задачи получают ErrQueueClosed
	for {
		select {
		case t := <-q.tasks:
			t.done <- ErrQueueClosed
		default:
			return
		}
	}
}
