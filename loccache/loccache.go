// Package loccache implements spec.md §4.5: the mapping from an
// absolute path to {rovec, rwvec, bouncevec, deadline}, seeded by the
// Path Registry and updated by server responses.
package loccache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rfsd/rfsd/smask"
)

// Entry is a point-in-time snapshot of one path's location state.
type Entry struct {
	ROVec     smask.Mask
	RWVec     smask.Mask
	BounceVec smask.Mask
	// Deadline is non-zero while the entry is provisional: the
	// selector must treat it as a wait condition, not an answer
	// (spec.md §4.5).
	Deadline time.Time
}

// Provisional reports whether the entry's deadline is set and has not
// yet passed.
func (e Entry) Provisional(now time.Time) bool {
	return !e.Deadline.IsZero() && now.Before(e.Deadline)
}

type record struct {
	rovec, rwvec, bouncevec smask.Mask
	deadline                time.Time
	lastAccess              time.Time
}

// Cache is the thread-safe path → location table. One mutex protects
// the whole table, per spec.md §4.5 "Thread-safety: one mutex
// protects the table."
type Cache struct {
	mu      sync.Mutex
	entries map[string]*record
	group   singleflight.Group
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*record)}
}

func snapshot(r *record) Entry {
	return Entry{ROVec: r.rovec, RWVec: r.rwvec, BounceVec: r.bouncevec, Deadline: r.deadline}
}

// AddFile folds a server report into path's entry (spec.md §4.5).
//
// If the entry exists, mask is ORed into rovec and, if isWrite, into
// rwvec (else cleared from rwvec). A fresh (delay == 0) report always
// clears mask from bouncevec — DESIGN.md's resolution of the
// bouncevec/deadline interplay the original left asymmetric: "a fresh
// have wins and clears the bouncing bit". If delay > 0, the deadline
// is set to now+delay and both capability vectors are cleared (a
// pending lookup). If the entry is absent, it is created.
func (c *Cache) AddFile(path string, mask smask.Mask, isWrite bool, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[path]
	if !ok {
		r = &record{}
		c.entries[path] = r
	}
	r.lastAccess = time.Now()

	if delay > 0 {
		r.deadline = time.Now().Add(delay)
		r.rovec = smask.Mask{}
		r.rwvec = smask.Mask{}
		return
	}

	r.rovec = r.rovec.Or(mask)
	if isWrite {
		r.rwvec = r.rwvec.Or(mask)
	} else {
		r.rwvec = r.rwvec.AndNot(mask)
	}
	r.bouncevec = r.bouncevec.AndNot(mask)
	r.deadline = time.Time{}
}

// DelFile clears mask from both vectors for path. If both vectors
// become zero and delay == 0, the entry is removed outright — this is
// what makes the cache-coherence law in spec.md §8 hold: "the next
// getFile(p) returns not found". A delay > 0 instead keeps the entry
// and sets its deadline to now+delay, used when a delete coincides
// with a fresh lookup being started.
func (c *Cache) DelFile(path string, mask smask.Mask, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[path]
	if !ok {
		return
	}
	r.rovec = r.rovec.AndNot(mask)
	r.rwvec = r.rwvec.AndNot(mask)

	if delay > 0 {
		r.deadline = time.Now().Add(delay)
		return
	}
	if r.rovec.IsZero() && r.rwvec.IsZero() {
		delete(c.entries, path)
	}
}

// Bounce marks mask as reporting path but currently unreachable
// (spec.md §4.6 "Bouncing"), without disturbing the existing
// capability vectors.
func (c *Cache) Bounce(path string, mask smask.Mask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[path]
	if !ok {
		r = &record{}
		c.entries[path] = r
	}
	r.bouncevec = r.bouncevec.Or(mask)
	r.lastAccess = time.Now()
}

// GetFile copies the vectors and live deadline for path. A stale
// (expired) deadline is cleared before the copy is taken, per
// spec.md §4.5.
func (c *Cache) GetFile(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[path]
	if !ok {
		return Entry{}, false
	}
	r.lastAccess = time.Now()
	if !r.deadline.IsZero() && !time.Now().Before(r.deadline) {
		r.deadline = time.Time{}
	}
	return snapshot(r), true
}

// Resolve is the entry point for SelServer's cold-lookup path
// (spec.md §4.6 "First call for an unseen path"). If path already has
// an entry it is returned immediately. Otherwise, concurrent Resolve
// calls for the same path are collapsed by golang.org/x/sync/
// singleflight so only one of them actually invokes broadcast (the
// `state <path>` fan-out); every caller then observes the freshly
// seeded provisional entry with deadline = now+seedDelay.
func (c *Cache) Resolve(path string, seedDelay time.Duration, broadcast func()) (Entry, bool) {
	if e, ok := c.GetFile(path); ok {
		return e, true
	}

	_, _, _ = c.group.Do(path, func() (interface{}, error) {
		c.mu.Lock()
		if _, exists := c.entries[path]; !exists {
			c.entries[path] = &record{deadline: time.Now().Add(seedDelay), lastAccess: time.Now()}
		}
		c.mu.Unlock()
		broadcast()
		return nil, nil
	})

	return c.GetFile(path)
}

// Extract collects every path currently matching prefix, for the
// state-refresh broadcast issued when a server declares a new
// addpath (spec.md §4.5, §4.6).
func (c *Cache) Extract(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for p := range c.entries {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Scrub removes entries unaccessed for longer than lifetime (spec.md
// §4.5, a periodic Job). It returns the number of entries removed.
func (c *Cache) Scrub(lifetime time.Duration) int {
	cutoff := time.Now().Add(-lifetime)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for p, r := range c.entries {
		if r.lastAccess.Before(cutoff) {
			delete(c.entries, p)
			n++
		}
	}
	return n
}

// Len reports the number of cached paths, for the summary statistics
// document.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
