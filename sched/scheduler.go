package sched

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rfsd/rfsd/internal/xlog"
)

// idleGrace is how long a worker above minWorkers waits for ready
// work before terminating (spec.md §4.3 "short grace interval").
const idleGrace = 5 * time.Second

// Scheduler runs Jobs on a bounded pool of worker goroutines, plus a
// single timer goroutine that migrates due deferred Jobs onto the
// ready queue. There are no priorities: Schedule is best-effort FIFO.
// Cancellation is not supported; Jobs must be self-bounded.
type Scheduler struct {
	log *logrus.Entry

	minWorkers int
	maxWorkers int

	mu      sync.Mutex
	ready   []Job
	workers int
	wake    chan struct{}

	deferred  deferredQueue
	timerWake chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Scheduler sized between minWorkers and maxWorkers and
// starts its timer goroutine.
func New(name string, minWorkers, maxWorkers int) *Scheduler {
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	s := &Scheduler{
		log:        xlog.For("sched").WithField("name", name),
		minWorkers: minWorkers,
		maxWorkers: maxWorkers,
		wake:       make(chan struct{}, 1),
		timerWake:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
	s.workers = s.minWorkers
	for i := 0; i < s.minWorkers; i++ {
		s.startWorker()
	}
	s.wg.Add(1)
	go s.timerLoop()
	return s
}

// Schedule appends job to the ready FIFO, wakes one worker, and grows
// the pool by one worker if it is below maxWorkers and the queue was
// non-empty before this call (spec.md §4.3).
func (s *Scheduler) Schedule(job Job) {
	s.mu.Lock()
	wasEmpty := len(s.ready) == 0
	s.ready = append(s.ready, job)
	grow := !wasEmpty && s.workers < s.maxWorkers
	if grow {
		s.workers++
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	if grow {
		s.startWorker()
	}
}

// ScheduleAt inserts job into the deferred queue ordered by at; the
// timer goroutine migrates it to the ready FIFO once due.
func (s *Scheduler) ScheduleAt(job Job, at time.Time) {
	s.deferred.push(deferredJob{job: job, at: at})
	select {
	case s.timerWake <- struct{}{}:
	default:
	}
}

// ScheduleAfter is a convenience wrapper for ScheduleAt(job, time.Now().Add(d)).
func (s *Scheduler) ScheduleAfter(job Job, d time.Duration) {
	s.ScheduleAt(job, time.Now().Add(d))
}

func (s *Scheduler) startWorker() {
	s.wg.Add(1)
	go s.workerLoop()
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	idle := time.NewTimer(idleGrace)
	defer idle.Stop()

	for {
		job, ok := s.dequeue()
		if ok {
			idle.Stop()
			select {
			case <-idle.C:
			default:
			}
			s.runJob(job)
			idle.Reset(idleGrace)
			continue
		}

		select {
		case <-s.stopCh:
			s.exitWorker()
			return
		case <-s.wake:
			continue
		case <-idle.C:
			s.mu.Lock()
			if s.workers > s.minWorkers {
				s.workers--
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(idleGrace)
		}
	}
}

func (s *Scheduler) exitWorker() {
	s.mu.Lock()
	if s.workers > 0 {
		s.workers--
	}
	s.mu.Unlock()
}

func (s *Scheduler) dequeue() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return nil, false
	}
	job := s.ready[0]
	s.ready = s.ready[1:]
	return job, true
}

func (s *Scheduler) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("job panicked")
		}
	}()
	job.DoIt()
}

// Stop signals all workers and the timer goroutine to exit once idle.
// It does not wait for in-flight Jobs to finish running.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Wait blocks until every worker and the timer goroutine has exited,
// which only happens after Stop.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) timerLoop() {
	defer s.wg.Done()
	for {
		next, ok := s.deferred.peek()
		var wait <-chan time.Time
		var t *time.Timer
		if ok {
			d := time.Until(next)
			if d <= 0 {
				s.migrateDue()
				continue
			}
			t = time.NewTimer(d)
			wait = t.C
		}

		select {
		case <-s.stopCh:
			if t != nil {
				t.Stop()
			}
			return
		case <-s.timerWake:
		case <-wait:
		}
		if t != nil {
			t.Stop()
		}
		s.migrateDue()
	}
}

func (s *Scheduler) migrateDue() {
	now := time.Now()
	for {
		dj, ok := s.deferred.popDue(now)
		if !ok {
			return
		}
		s.Schedule(dj.job)
	}
}

// Pending reports the ready-queue depth and live worker count, for
// the summary statistics document (spec.md §6 "sched" stats).
func (s *Scheduler) Pending() (readyLen, workers, deferredLen int) {
	s.mu.Lock()
	readyLen, workers = len(s.ready), s.workers
	s.mu.Unlock()
	deferredLen = s.deferred.len()
	return
}
