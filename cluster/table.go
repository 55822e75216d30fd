package cluster

import (
	"fmt"
	"sync"

	"github.com/rfsd/rfsd/smask"
)

// Table is the dense array of up to smask.Width live Server records
// (spec.md §4.6). Find-by-host is a linear scan, per spec.md.
type Table struct {
	mu    sync.Mutex
	slots [smask.Width]*Server
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{}
}

func sameHost(s *Server, host string, port int) bool {
	return s.Host == host && s.Port == port
}

// Login implements the four-step login procedure of spec.md §4.6:
//  1. an existing, currently-bound record for this host is rejected.
//  2. an existing, unbound record is rebound: instance++, offline
//     cleared, bound and active set; its slot and mask are kept.
//  3. otherwise an empty slot is allocated (a freed slot is reused
//     first, collapsing "reuse a retired slot" into the same step
//     since a dropped server's slot is released outright).
//  4. if no slot is free, the login is rejected.
func (t *Table) Login(host string, port int) (*Server, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.slots {
		if s == nil || !sameHost(s, host, port) {
			continue
		}
		flags := s.GetFlags()
		if flags.Bound && flags.Active {
			return nil, fmt.Errorf("cluster: %s:%d already bound", host, port)
		}
		s.mu.Lock()
		s.Instance++
		s.mu.Unlock()
		s.SetFlags(func(f *Flags) {
			f.Offline = false
			f.Bound = true
			f.Active = true
		})
		return s, nil
	}

	for slot, s := range t.slots {
		if s != nil {
			continue
		}
		srv := &Server{
			Slot: slot,
			Mask: smask.FromSlot(slot),
			Host: host,
			Port: port,
		}
		srv.Flags = Flags{Bound: true, Active: true}
		t.slots[slot] = srv
		return srv, nil
	}

	return nil, fmt.Errorf("cluster: server table full")
}

// Release frees slot unconditionally (used by the drop Job once the
// grace period has elapsed with no reconnect under the same
// instance).
func (t *Table) Release(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot >= 0 && slot < len(t.slots) {
		t.slots[slot] = nil
	}
}

// Get returns the Server bound to slot, or nil.
func (t *Table) Get(slot int) *Server {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[slot]
}

// Find returns the Server bound to host:port, or nil.
func (t *Table) Find(host string, port int) *Server {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s != nil && sameHost(s, host, port) {
			return s
		}
	}
	return nil
}

// All returns every non-nil Server, for broadcast/monitoring loops.
func (t *Table) All() []*Server {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Server, 0, len(t.slots))
	for _, s := range t.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Mask returns the union of the bit-masks of every bound server,
// for the Testable Properties invariant relating the Path Registry's
// union of masks to the Server Table's bound bits.
func (t *Table) Mask() smask.Mask {
	t.mu.Lock()
	defer t.mu.Unlock()
	var m smask.Mask
	for _, s := range t.slots {
		if s != nil && s.GetFlags().Bound {
			m = m.Or(s.Mask)
		}
	}
	return m
}
