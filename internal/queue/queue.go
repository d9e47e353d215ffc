package queue

import (
	"sync"
)

// Queue is a generic FIFO safe for concurrent use. A positive limit bounds
// the number of queued items.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// New creates a new empty, unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// NewBounded creates a queue that holds at most limit items.
func NewBounded[T any](limit int) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0, min(limit, 64)),
		limit: limit,
	}
}

// Push appends items to the queue. On a bounded queue items that do not fit
// are discarded; the return value is the number accepted.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 {
		room := q.limit - len(q.items)
		if room <= 0 {
			return 0
		}
		if len(items) > room {
			items = items[:room]
		}
	}
	q.items = append(q.items, items...)
	return len(items)
}

// Pop removes and returns the first item. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all items from the queue.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
	q.items = q.items[:0]
}

// GetAndEmpty returns all items in FIFO order and clears the queue. Items
// pushed afterwards land in a fresh backing array.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
