package loccache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rfsd/rfsd/smask"
)

func TestAddFileThenGetFile(t *testing.T) {
	c := New()
	m := smask.FromSlot(2)
	c.AddFile("/d/f1", m, true, 0)

	e, ok := c.GetFile("/d/f1")
	require.True(t, ok)
	require.True(t, e.ROVec.Test(2))
	require.True(t, e.RWVec.Test(2))
}

func TestDelFileClearsAndRemoves(t *testing.T) {
	c := New()
	m := smask.FromSlot(2)
	c.AddFile("/d/f1", m, true, 0)
	c.DelFile("/d/f1", m, 0)

	_, ok := c.GetFile("/d/f1")
	require.False(t, ok, "cache coherence law: not found after clearing both vectors")
}

func TestRWSubsetOfRO(t *testing.T) {
	c := New()
	m1 := smask.FromSlot(1)
	m2 := smask.FromSlot(2)
	c.AddFile("/d/f1", m1, true, 0)
	c.AddFile("/d/f1", m2, false, 0)

	e, ok := c.GetFile("/d/f1")
	require.True(t, ok)
	require.True(t, e.RWVec.IsSubsetOf(e.ROVec))
}

func TestFreshHaveClearsBounce(t *testing.T) {
	c := New()
	m := smask.FromSlot(3)
	c.Bounce("/d/f2", m)
	e, _ := c.GetFile("/d/f2")
	require.True(t, e.BounceVec.Test(3))

	c.AddFile("/d/f2", m, false, 0)
	e, _ = c.GetFile("/d/f2")
	require.False(t, e.BounceVec.Test(3), "a fresh have wins and clears the bouncing bit")
}

func TestProvisionalDeadline(t *testing.T) {
	c := New()
	c.AddFile("/d/f3", smask.Mask{}, false, 50*time.Millisecond)
	e, ok := c.GetFile("/d/f3")
	require.True(t, ok)
	require.True(t, e.Provisional(time.Now()))

	time.Sleep(60 * time.Millisecond)
	e, ok = c.GetFile("/d/f3")
	require.True(t, ok)
	require.True(t, e.Deadline.IsZero(), "stale deadline cleared on read")
}

func TestResolveCollapsesConcurrentBroadcasts(t *testing.T) {
	c := New()
	var calls int32
	var wg sync.WaitGroup
	results := make([]Entry, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, ok := c.Resolve("/d/cold", 5*time.Second, func() {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
			})
			require.True(t, ok)
			results[i] = e
		}(i)
	}
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "singleflight collapses concurrent cold lookups")
	for _, e := range results {
		require.True(t, e.Provisional(time.Now()))
	}
}

func TestScrubRemovesStale(t *testing.T) {
	c := New()
	c.AddFile("/old", smask.FromSlot(1), false, 0)
	n := c.Scrub(-time.Second)
	require.Equal(t, 1, n)
	require.Equal(t, 0, c.Len())
}

func TestExtractPrefix(t *testing.T) {
	c := New()
	c.AddFile("/a/1", smask.FromSlot(1), false, 0)
	c.AddFile("/a/2", smask.FromSlot(1), false, 0)
	c.AddFile("/b/1", smask.FromSlot(1), false, 0)

	got := c.Extract("/a/")
	require.ElementsMatch(t, []string{"/a/1", "/a/2"}, got)
}
