package session

import (
	"sync"

	"github.com/llehouerou/eventsound/internal/sounderr"
)

// Record is one finished play waiting to be delivered.
type Record struct {
	ID   uint32
	Code sounderr.Code
}

// resultQueue collects records from native goroutines for the loop.
type resultQueue struct {
	mu      sync.Mutex
	records []Record
	closed  bool
}

// push appends r. It reports false if the queue was already closed.
func (q *resultQueue) push(r Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.records = append(q.records, r)
	return true
}

// drain takes every queued record in insertion order.
func (q *resultQueue) drain() []Record {
	q.mu.Lock()
	out := q.records
	q.records = nil
	q.mu.Unlock()
	return out
}

// close takes the remaining records and rejects later pushes.
func (q *resultQueue) close() []Record {
	q.mu.Lock()
	out := q.records
	q.records = nil
	q.closed = true
	q.mu.Unlock()
	return out
}
