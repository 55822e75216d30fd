package session

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrBadHandle is returned when a request names a handle the session
// does not have open.
var ErrBadHandle = errors.New("session: unknown file handle")

type openFile struct {
	path    string
	f       File
	pending int
	closed  bool
}

// handleTable is the per-session open-file table, keyed by the 4-byte
// handle returned from open (spec.md §4.8 "Open").
type handleTable struct {
	mu   sync.Mutex
	next uint32
	open map[uint32]*openFile
}

func newHandleTable() *handleTable {
	return &handleTable{open: make(map[uint32]*openFile)}
}

// Insert records f under a freshly allocated handle.
func (t *handleTable) Insert(path string, f File) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.open[h] = &openFile{path: path, f: f}
	return h
}

// Get returns the File and path for handle, or ErrBadHandle.
func (t *handleTable) Get(handle uint32) (File, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	of, ok := t.open[handle]
	if !ok {
		return nil, "", ErrBadHandle
	}
	return of.f, of.path, nil
}

// Begin marks the start of an async op against handle, returning its
// File and path for the op to use once it actually runs (spec.md
// §4.8 "any in-flight async ops against a closed handle complete and
// their replies are discarded silently"). It fails once the handle
// has been released, synchronous callers included.
func (t *handleTable) Begin(handle uint32) (File, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	of, ok := t.open[handle]
	if !ok || of.closed {
		return nil, "", ErrBadHandle
	}
	of.pending++
	return of.f, of.path, nil
}

// End reports the completion of an op started by Begin. discard is
// true when the handle was closed while the op was in flight, meaning
// the op ran against a real fd on borrowed time and its reply must be
// dropped rather than sent to the client; End performs the deferred
// close itself once the last such op drains.
func (t *handleTable) End(handle uint32) (discard bool) {
	t.mu.Lock()
	of, ok := t.open[handle]
	if !ok {
		t.mu.Unlock()
		return false
	}
	of.pending--
	closeNow := of.closed && of.pending <= 0
	if closeNow {
		delete(t.open, handle)
	}
	t.mu.Unlock()
	if closeNow {
		_ = of.f.Close()
	}
	return of.closed
}

// Release marks handle closed to new ops. If an async op is still in
// flight against it (a Begin with no matching End yet), the real
// close is deferred to the last End call so that op still completes
// against a live fd; its reply is discarded via End's return value.
// Release itself always succeeds immediately from the client's point
// of view once the handle exists.
func (t *handleTable) Release(handle uint32) error {
	t.mu.Lock()
	of, ok := t.open[handle]
	if !ok {
		t.mu.Unlock()
		return ErrBadHandle
	}
	if of.closed {
		t.mu.Unlock()
		return ErrBadHandle
	}
	of.closed = true
	if of.pending > 0 {
		t.mu.Unlock()
		return nil
	}
	delete(t.open, handle)
	t.mu.Unlock()
	return of.f.Close()
}

// ReleaseAll closes every still-open handle, for session teardown
// (spec.md §4.8 "Link-level error").
func (t *handleTable) ReleaseAll() {
	t.mu.Lock()
	handles := t.open
	t.open = make(map[uint32]*openFile)
	t.mu.Unlock()
	for _, of := range handles {
		_ = of.f.Close()
	}
}

// Len reports the number of currently open handles.
func (t *handleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Paths lists the local path behind every currently open handle.
func (t *handleTable) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.open))
	for _, of := range t.open {
		paths = append(paths, of.path)
	}
	return paths
}
