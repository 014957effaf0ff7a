package worker

import (
	"sync"
	"sync/atomic"
)

// Counter tracks how many work items have finished. It is shared by the pool
// (increments) and the writer (reads).
type Counter struct {
	n     atomic.Int64
	total int64
	done  chan struct{}
	once  sync.Once
}

// NewCounter returns a Counter that reports Done after total increments.
func NewCounter(total int) *Counter {
	c := &Counter{total: int64(total), done: make(chan struct{})}
	if total <= 0 {
		c.close()
	}
	return c
}

// Inc records one finished item and returns the new count.
func (c *Counter) Inc() int64 {
	v := c.n.Add(1)
	if v >= c.total {
		c.close()
	}
	return v
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	return c.n.Load()
}

// Total returns the expected final count.
func (c *Counter) Total() int64 {
	return c.total
}

// Complete reports whether every item has finished.
func (c *Counter) Complete() bool {
	return c.n.Load() >= c.total
}

// Done is closed once the count reaches the total.
func (c *Counter) Done() <-chan struct{} {
	return c.done
}

func (c *Counter) close() {
	c.once.Do(func() { close(c.done) })
}
