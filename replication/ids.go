package replication

import "sync/atomic"

// IDAllocator issues transaction ids. Ids must be unique within the id space
// shared by the coordinators using the allocator, increasing, and never less
// than one.
type IDAllocator interface {
	NextID() int64
}

// Counter is an IDAllocator starting at one. It is safe to share between
// coordinators running in different goroutines.
type Counter struct {
	last atomic.Int64
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) NextID() int64 {
	return c.last.Add(1)
}
