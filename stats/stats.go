// Package stats renders the summary statistics document of spec.md
// §6: a small XML-like text with root <statistics ver=… src=… site=…
// tos=…> and repeated <stats id="…"> children, one per subsystem,
// each carrying scalar integer elements only.
//
// Grounded on the teacher's accounting.go Stats type: a mutex-guarded
// counters struct with a String() method that Fprintf's a report: the
// same shape, generalized from one flat report to several tagged
// subsystem reports.
package stats

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Counters is the live, mutable side of the document: atomics a
// caller bumps as events occur, read by Snapshot/Render. All fields
// are accessed only through atomic ops so no lock is needed, unlike
// the teacher's RWMutex-guarded Stats (there is no StringSet-shaped
// state here, just scalars).
type Counters struct {
	linkNum, bytesIn, bytesOut int64
	schedCompleted             int64
	buffMaxing                 int64
	pollScrubbed               int64
	start                      time.Time
}

// NewCounters returns a zeroed Counters with its start time stamped.
func NewCounters(now time.Time) *Counters {
	return &Counters{start: now}
}

func (c *Counters) LinkOpened()       { atomic.AddInt64(&c.linkNum, 1) }
func (c *Counters) LinkClosed()       { atomic.AddInt64(&c.linkNum, -1) }
func (c *Counters) BytesIn(n int64)   { atomic.AddInt64(&c.bytesIn, n) }
func (c *Counters) BytesOut(n int64)  { atomic.AddInt64(&c.bytesOut, n) }
func (c *Counters) SchedJobDone()     { atomic.AddInt64(&c.schedCompleted, 1) }
func (c *Counters) BuffPoolExceeded() { atomic.AddInt64(&c.buffMaxing, 1) }
func (c *Counters) PollScrubbed(n int) {
	atomic.AddInt64(&c.pollScrubbed, int64(n))
}

// Uptime reports elapsed time since the Counters were created.
func (c *Counters) Uptime() time.Duration { return time.Since(c.start) }

// Sources groups the read-only accessors the document gathers from
// every live subsystem. Each field is optional; a nil accessor omits
// that <stats id="…"> block rather than erroring, since not every
// process (redirector vs. data server) runs every subsystem.
type Sources struct {
	Sched func() (ready, workers, deferred int)
	Buff  func() (inUse int64)
	Poll  func() (cachedPaths int)
	Proc  func() (sessions, prepares int)
	Prot  func() (openHandles int, asyncInFlight int64)
}

// Document identity fields mirrored onto the <statistics> root
// element (spec.md §6: `ver=… src=… site=… tos=…`).
type Document struct {
	Version string
	Source  string
	Site    string
	TOS     int64 // process start time, seconds since epoch
}

// Render produces the full XML-like text combining d's identity,
// c's counters, and whatever src accessors are non-nil.
func (d Document) Render(c *Counters, src Sources) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<statistics ver=%q src=%q site=%q tos=%d>\n", d.Version, d.Source, d.Site, d.TOS)

	fmt.Fprintf(&b, "  <stats id=\"link\"><num>%d</num><in>%d</in><out>%d</out></stats>\n",
		atomic.LoadInt64(&c.linkNum), atomic.LoadInt64(&c.bytesIn), atomic.LoadInt64(&c.bytesOut))

	if src.Sched != nil {
		ready, workers, deferred := src.Sched()
		fmt.Fprintf(&b, "  <stats id=\"sched\"><ready>%d</ready><workers>%d</workers><deferred>%d</deferred><done>%d</done></stats>\n",
			ready, workers, deferred, atomic.LoadInt64(&c.schedCompleted))
	}

	if src.Buff != nil {
		inUse := src.Buff()
		fmt.Fprintf(&b, "  <stats id=\"buff\"><inuse>%d</inuse><maxing>%d</maxing></stats>\n",
			inUse, atomic.LoadInt64(&c.buffMaxing))
	}

	if src.Poll != nil {
		cached := src.Poll()
		fmt.Fprintf(&b, "  <stats id=\"poll\"><paths>%d</paths><scrubbed>%d</scrubbed></stats>\n",
			cached, atomic.LoadInt64(&c.pollScrubbed))
	}

	if src.Proc != nil {
		sessions, prepares := src.Proc()
		fmt.Fprintf(&b, "  <stats id=\"proc\"><sessions>%d</sessions><prepares>%d</prepares><uptime>%d</uptime></stats>\n",
			sessions, prepares, int64(c.Uptime().Seconds()))
	}

	if src.Prot != nil {
		openHandles, asyncInFlight := src.Prot()
		fmt.Fprintf(&b, "  <stats id=\"prot\"><open>%d</open><async>%d</async></stats>\n",
			openHandles, asyncInFlight)
	}

	b.WriteString("</statistics>\n")
	return b.String()
}
