// Package memory provides the in-process PendingResults queue shared by the
// worker pool (producers) and the writer (single consumer).
package memory

import (
	"sync"

	"github.com/JakeFAU/reverse411/internal/lookup"
)

// Queue is an unbounded multi-producer queue of completed records. Producers
// never block; the consumer is woken through Notify.
type Queue struct {
	mu     sync.Mutex
	items  []lookup.ResultRecord
	notify chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends a record and signals the consumer.
func (q *Queue) Push(rec lookup.ResultRecord) {
	q.mu.Lock()
	q.items = append(q.items, rec)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of records waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes up to n records in FIFO order. n <= 0 drains everything.
// Fewer than n are returned when the queue holds less.
func (q *Queue) Drain(n int) []lookup.ResultRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	if n == 0 {
		return nil
	}
	out := make([]lookup.ResultRecord, n)
	copy(out, q.items[:n])
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return out
}

// Notify returns a channel that receives after pushes. Signals coalesce, so a
// receiver must re-check Len.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
