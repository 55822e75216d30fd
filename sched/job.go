// Package sched implements spec.md §4.3: a bounded worker pool
// draining a FIFO ready queue, paired with a time-ordered deferred
// queue (the "time wheel" for drops, resets, and prepare scrubs named
// in spec.md §2 item 10).
package sched

// Job is the unit of work the Scheduler runs. DoIt executes to
// natural completion on whichever worker goroutine dequeues it — a
// Job may not assume any particular goroutine runs it, and it may
// block (spec.md §5: "blocking I/O inside a Job is allowed"). A
// periodic Job reschedules itself from within DoIt using the
// Scheduler handle it was constructed with; Scheduler never
// resubmits a Job on its own.
type Job interface {
	DoIt()
}

// JobFunc adapts a plain function to the Job interface.
type JobFunc func()

// DoIt implements Job.
func (f JobFunc) DoIt() { f() }
