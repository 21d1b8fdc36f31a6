// Package worker runs side-effecting work that must outlive the request
// that triggered it.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned by Submit after Shutdown has begun.
var ErrStopped = errors.New("worker queue stopped")

// Task is a unit of detached work. The context it receives is owned by the
// queue, not by whoever submitted the task.
type Task func(ctx context.Context) error

// Queue is a process-scoped background executor. Tasks run on the queue's
// own context, so cancelling the submitter's context never abandons a task
// half-way. Failures are logged in one place.
type Queue struct {
	logger *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	sem    chan struct{}
}

// NewQueue creates a queue running at most concurrency tasks at a time.
func NewQueue(logger *zap.SugaredLogger, concurrency int) *Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, concurrency),
	}
}

// Submit schedules the task and returns a channel that receives its result
// exactly once. Callers may ignore the channel (fire-and-forget) or wait on
// it for as long as they care to.
func (q *Queue) Submit(name string, task Task) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		done <- ErrStopped
		return done
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()

		q.sem <- struct{}{}
		defer func() { <-q.sem }()

		err := task(q.ctx)
		if err != nil {
			q.logger.Errorw("background task failed", "task", name, "err", err)
		} else {
			q.logger.Debugw("background task done", "task", name)
		}
		done <- err
	}()

	return done
}

// Go is Submit without the result channel.
func (q *Queue) Go(name string, task Task) {
	q.Submit(name, task)
}

// Shutdown stops accepting tasks and waits for running ones. If ctx ends
// first the queue context is cancelled so tasks can bail out.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-finished
		return ctx.Err()
	}
}
