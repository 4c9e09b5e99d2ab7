package syncengine

import "sync"

// task is one unit of work for the write worker.
type task struct {
	text    string
	barrier bool
	// gen is the binding generation the write was issued against.
	gen  uint64
	done chan error
}

// taskQueue is an unbounded FIFO drained by a single worker. Pushing never
// blocks, so callers on the UI path stay responsive while I/O is slow.
type taskQueue struct {
	mu     sync.Mutex
	items  []*task
	wake   chan struct{}
	closed bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{wake: make(chan struct{}, 1)}
}

// push appends t. It reports false once the queue is closed.
func (q *taskQueue) push(t *task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest task, if any.
func (q *taskQueue) pop() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

// close rejects further pushes and returns the tasks never started.
func (q *taskQueue) close() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}
