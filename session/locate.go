package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rfsd/rfsd/link"
	"github.com/rfsd/rfsd/wire"
)

// ErrLocateTimeout is returned when no reply for a locate request
// arrives within repWait (spec.md §4.8 "Locate": "block up to
// repWait").
var ErrLocateTimeout = errors.New("session: locate timed out")

type locateWaiter struct {
	path    string
	seq     uint64
	replyCh chan wire.LocateReply
}

type cachedLocate struct {
	seq   uint64
	reply wire.LocateReply
}

// Locator implements the redirector-side client of spec.md §4.8
// "Locate": it serializes `select[s]` requests to the Manager Link
// and demultiplexes replies by message id.
//
// SPEC_FULL.md §4 supplements this with XrdOdcFinder.cc's dual-answer
// racing: a path may have two outstanding locate requests in flight.
// Each request is stamped with a per-path sequence number; the cache
// keeps the reply of the newest request that has answered, and a
// reply belonging to an older request is discarded rather than
// clobbering a fresher answer already recorded.
type Locator struct {
	manager *link.Link

	mu      sync.Mutex
	nextID  uint32
	pathSeq map[string]uint64
	waiters map[uint32]*locateWaiter
	cache   map[string]cachedLocate
}

// NewLocator wraps the Link used to talk to the subscribed Manager.
func NewLocator(manager *link.Link) *Locator {
	return &Locator{
		manager: manager,
		pathSeq: make(map[string]uint64),
		waiters: make(map[uint32]*locateWaiter),
		cache:   make(map[string]cachedLocate),
	}
}

// Locate sends a select request for path and blocks up to repWait for
// a reply.
func (l *Locator) Locate(path string, mode byte, stage bool, repWait time.Duration) (wire.LocateReply, error) {
	l.mu.Lock()
	l.nextID++
	msgid := l.nextID
	l.pathSeq[path]++
	seq := l.pathSeq[path]
	w := &locateWaiter{path: path, seq: seq, replyCh: make(chan wire.LocateReply, 1)}
	l.waiters[msgid] = w
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.waiters, msgid)
		l.mu.Unlock()
	}()

	if err := l.manager.Send([]byte(wire.LocateRequest(msgid, stage, mode, path))); err != nil {
		return wire.LocateReply{}, errors.Wrap(err, "session: sending locate request")
	}

	select {
	case reply := <-w.replyCh:
		return reply, nil
	case <-time.After(repWait):
		return wire.LocateReply{}, ErrLocateTimeout
	}
}

// HandleReply dispatches one reply line read from the Manager Link.
// The first token is the msgid (spec.md §6: "the first token on a
// response line is the 4-byte request id").
func (l *Locator) HandleReply(msgidTok string, rest string) error {
	var msgid uint32
	if _, err := fmt.Sscanf(msgidTok, "%d", &msgid); err != nil {
		return errors.Wrapf(err, "session: malformed locate reply id %q", msgidTok)
	}
	reply, err := wire.ParseLocateReply(rest)
	if err != nil {
		return err
	}

	l.mu.Lock()
	w, ok := l.waiters[msgid]
	if !ok {
		l.mu.Unlock()
		return nil // request already timed out and was forgotten
	}
	cached, hasCached := l.cache[w.path]
	if !hasCached || w.seq >= cached.seq {
		l.cache[w.path] = cachedLocate{seq: w.seq, reply: reply}
	}
	l.mu.Unlock()

	select {
	case w.replyCh <- reply:
	default:
	}
	return nil
}

// Cached returns the most recently recorded winning reply for path,
// if any.
func (l *Locator) Cached(path string) (wire.LocateReply, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cache[path]
	return c.reply, ok
}
