package session

import (
	"sync/atomic"

	"github.com/rfsd/rfsd/sched"
)

// AsyncQueue bounds the number of in-flight async ops a session will
// enqueue onto the Scheduler; once full, callers fall back to
// synchronous handling (spec.md §5 "Back-pressure").
type AsyncQueue struct {
	s        *sched.Scheduler
	inFlight int64
	max      int64
}

// NewAsyncQueue builds an async-op admission gate backed by s, bounded
// to max concurrently in-flight ops. Normally shared across every
// Session a listener accepts.
func NewAsyncQueue(s *sched.Scheduler, max int) *AsyncQueue {
	if max <= 0 {
		max = 1
	}
	return &AsyncQueue{s: s, max: int64(max)}
}

// TryEnqueue schedules fn on the Scheduler if the queue has room,
// returning true; otherwise it does nothing and returns false so the
// caller performs the operation inline.
func (q *AsyncQueue) TryEnqueue(fn func()) bool {
	if atomic.AddInt64(&q.inFlight, 1) > q.max {
		atomic.AddInt64(&q.inFlight, -1)
		return false
	}
	q.s.Schedule(sched.JobFunc(func() {
		defer atomic.AddInt64(&q.inFlight, -1)
		fn()
	}))
	return true
}

// InFlight reports the current number of outstanding async ops, for
// diagnostics.
func (q *AsyncQueue) InFlight() int64 {
	return atomic.LoadInt64(&q.inFlight)
}
