package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleFIFORuns(t *testing.T) {
	s := New("test", 1, 4)
	defer func() { s.Stop(); s.Wait() }()

	var n int32
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		s.Schedule(JobFunc(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		}))
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not all run")
	}
	require.EqualValues(t, 10, atomic.LoadInt32(&n))
}

func TestScheduleAtDeferredFires(t *testing.T) {
	s := New("test", 1, 2)
	defer func() { s.Stop(); s.Wait() }()

	ran := make(chan struct{})
	s.ScheduleAfter(JobFunc(func() { close(ran) }), 20*time.Millisecond)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("deferred job never fired")
	}
}

func TestDeferredOrdering(t *testing.T) {
	s := New("test", 1, 1)
	defer func() { s.Stop(); s.Wait() }()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	s.ScheduleAt(JobFunc(func() {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		close(done)
	}), time.Now().Add(40*time.Millisecond))
	s.ScheduleAt(JobFunc(func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	}), time.Now().Add(10*time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2}, order)
}

func TestWorkerPoolBounded(t *testing.T) {
	s := New("test", 1, 2)
	defer func() { s.Stop(); s.Wait() }()

	block := make(chan struct{})
	for i := 0; i < 5; i++ {
		s.Schedule(JobFunc(func() { <-block }))
	}
	time.Sleep(50 * time.Millisecond)
	_, workers, _ := s.Pending()
	require.LessOrEqual(t, workers, 2)
	close(block)
}
