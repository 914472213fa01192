package bus

import "sync"

// Queue is an unbounded FIFO with a single consumer. Push never blocks, so
// a transport callback can hand events over without waiting on analytics.
//
// The consumer waits on Ready and then calls Drain, which returns
// everything queued so far in push order.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0, 64),
		ready: make(chan struct{}, 1),
	}
}

// Push appends v and wakes the consumer.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
		// a wake-up is already pending
	}
}

// Ready is signalled at least once after every Push.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns every queued item, oldest first.
// Returns nil when the queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]T, 0, cap(out))
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
