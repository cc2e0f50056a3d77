package transport

import "sync"

// Queue is a FIFO of inbound payloads, written by transport goroutines and
// drained by the node. A zero limit means unbounded.
type Queue struct {
	mut     sync.Mutex
	items   [][]byte
	limit   int
	dropped uint64
}

func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Push appends the payload. It returns false and drops the payload when the
// queue is full.
func (q *Queue) Push(payload []byte) bool {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.limit > 0 && len(q.items) >= q.limit {
		q.dropped++
		return false
	}

	q.items = append(q.items, payload)

	return true
}

// Drain removes and returns everything in the queue.
func (q *Queue) Drain() [][]byte {
	q.mut.Lock()
	defer q.mut.Unlock()

	items := q.items
	q.items = nil

	return items
}

func (q *Queue) Len() int {
	q.mut.Lock()
	defer q.mut.Unlock()

	return len(q.items)
}

// Dropped returns the number of payloads rejected because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mut.Lock()
	defer q.mut.Unlock()

	return q.dropped
}
