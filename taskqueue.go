package arbor

import (
	"context"
	"sync"
)

// taskQueue is a buffered queue of funcs drained by one goroutine. A post
// racing with stop either lands before the final drain or fails with
// ErrStopped; it never blocks past stop and is never dropped.
type taskQueue struct {
	ch   chan func()
	done chan struct{}
	once sync.Once

	// mu is held shared by posters, so stop can wait for in-flight sends.
	mu      sync.RWMutex
	stopped bool
}

func newTaskQueue(size int) *taskQueue {
	return &taskQueue{
		ch:   make(chan func(), size),
		done: make(chan struct{}),
	}
}

func (q *taskQueue) post(fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}
	select {
	case q.ch <- fn:
		return nil
	case <-q.done:
		return ErrStopped
	}
}

// run executes tasks until ctx is done, then stops the queue and runs what
// is still queued.
func (q *taskQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.stop()
			q.drain()
			return
		case fn := <-q.ch:
			fn()
		}
	}
}

// stop wakes posters blocked on a full queue, then waits for in-flight
// posts to finish.
func (q *taskQueue) stop() {
	q.once.Do(func() { close(q.done) })
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
}

func (q *taskQueue) drain() {
	for {
		select {
		case fn := <-q.ch:
			fn()
		default:
			return
		}
	}
}

func (q *taskQueue) len() int { return len(q.ch) }
