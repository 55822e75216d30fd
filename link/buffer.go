// Package link implements spec.md §4.1 (Link) and §4.2 (Buffer Pool):
// framed socket I/O with a recyclable Link, and a constant-time byte
// buffer pool sized to a small set of class sizes.
package link

import (
	"sort"
	"sync"
)

// defaultClasses mirrors the handful of buffer sizes a data server
// actually needs: small control replies, a page, and a couple of
// read/write chunk sizes.
var defaultClasses = []int{256, 4096, 65536, 1 << 20}

// BufferPool hands out byte slices from one of a small set of class
// sizes in constant time, bounded by an aggregate byte cap. Obtain
// picks the smallest class able to satisfy minSize or allocates a
// fresh, unpooled slice when minSize exceeds every class or the cap
// is exhausted; Release only returns pooled-size buffers to their
// class and frees anything else.
type BufferPool struct {
	mu      sync.Mutex
	classes []int
	free    map[int][][]byte
	cap     int64
	inUse   int64
}

// NewBufferPool builds a pool with the given aggregate byte cap. A
// cap <= 0 means unbounded.
func NewBufferPool(classes []int, capBytes int64) *BufferPool {
	cs := append([]int(nil), classes...)
	if len(cs) == 0 {
		cs = append([]int(nil), defaultClasses...)
	}
	sort.Ints(cs)
	return &BufferPool{
		classes: cs,
		free:    make(map[int][][]byte, len(cs)),
		cap:     capBytes,
	}
}

func (p *BufferPool) classFor(minSize int) (int, bool) {
	for _, c := range p.classes {
		if c >= minSize {
			return c, true
		}
	}
	return 0, false
}

// Obtain returns a buffer of at least minSize bytes. The returned
// slice has length minSize and capacity equal to its class size (or
// exactly minSize for an unpooled allocation).
func (p *BufferPool) Obtain(minSize int) []byte {
	class, ok := p.classFor(minSize)
	if !ok {
		return make([]byte, minSize)
	}

	p.mu.Lock()
	if p.cap > 0 && p.inUse+int64(class) > p.cap {
		p.mu.Unlock()
		// Over the aggregate cap: caller falls back to a
		// synchronous, unpooled buffer (spec.md §5 back-pressure).
		return make([]byte, minSize)
	}
	p.inUse += int64(class)
	bucket := p.free[class]
	var buf []byte
	if n := len(bucket); n > 0 {
		buf = bucket[n-1]
		p.free[class] = bucket[:n-1]
	}
	p.mu.Unlock()
	if buf == nil {
		return make([]byte, minSize, class)
	}
	return buf[:minSize]
}

// Release returns buf to the pool if it came from one of the pool's
// classes (recognized by capacity); otherwise it is dropped for the
// garbage collector to reclaim.
func (p *BufferPool) Release(buf []byte) {
	class := cap(buf)
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := sort.SearchInts(p.classes, class)
	if idx >= len(p.classes) || p.classes[idx] != class {
		return
	}
	p.inUse -= int64(class)
	if p.inUse < 0 {
		p.inUse = 0
	}
	p.free[class] = append(p.free[class], buf[:0:class])
}

// InUse reports the current aggregate bytes charged against the cap,
// for diagnostics and the summary statistics document.
func (p *BufferPool) InUse() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
