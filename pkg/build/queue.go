package build

import "sync"

// Queue is an unbounded FIFO of closures that must run on the owning
// goroutine. Workers Post; the owner calls Drain, typically once per
// frame or whenever Notify fires.
type Queue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Post appends fn. It never blocks.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain runs every queued closure in order, including ones posted by the
// closures themselves, and returns how many ran.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		q.mu.Unlock()
		if len(items) == 0 {
			return n
		}
		for _, fn := range items {
			fn()
			n++
		}
	}
}

// Len returns the number of pending closures.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notify receives a value after at least one Post since the last receive.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
