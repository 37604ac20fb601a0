package session

import (
	"github.com/llehouerou/eventsound/internal/sounderr"
)

// dispatch drains the queue on the loop goroutine. The queue lock is
// released before any callback runs.
func (s *Session) dispatch() {
	for _, r := range s.queue.drain() {
		s.deliver(r)
	}
}

// deliver runs the callback for one record. A panicking callback is
// reported and does not stop the records after it.
func (s *Session) deliver(r Record) {
	defer func() {
		if v := recover(); v != nil {
			s.onError(r.ID, v)
		}
	}()
	s.cb(r.ID, sounderr.New(r.Code))
}
