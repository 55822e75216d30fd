// Package cluster implements spec.md §4.6: the Server Table, the
// Manager orchestrator, and SelServer, the placement algorithm.
package cluster

import (
	"sync"
	"time"

	"github.com/rfsd/rfsd/smask"
)

// Flags are the per-server state bits named in the Data Model table.
type Flags struct {
	Bound   bool
	Offline bool
	Suspend bool
	NoStage bool
	Disable bool
	Active  bool
}

// Server is one slot's live record. Exactly one Server is bound per
// (slot, instance) pair at any time (spec.md §8 invariant). Fields
// are locked only briefly; long work happens after copying the
// fields it needs (spec.md §5).
type Server struct {
	mu sync.Mutex

	Slot     int
	Mask     smask.Mask
	Host     string
	Port     int
	Instance uint64

	Load        int // 0..100
	DiskFreeKB  int64
	DiskTotalKB int64
	DiskNumFS   int

	RefA, RefR                 int64
	RefALifetime, RefRLifetime int64

	Flags Flags

	DropDeadline time.Time
	missedPings  int

	// adjustedFreeKB tracks the space-adjust-per-selection supplement
	// (SPEC_FULL.md §4): provisionally debited after a write
	// selection, superseded by the next usage report.
	adjustedFreeKB int64
}

// HostPort returns the dial address for this server.
func (s *Server) HostPort() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Host, s.Port
}

// InstanceID returns the server's current instance counter, for
// fencing a bound connection against a later rebind under the same
// slot (spec.md's instance-generation fencing supplement).
func (s *Server) InstanceID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Instance
}

// Snapshot is a point-in-time, lock-free copy of the fields the
// selector scores on.
type Snapshot struct {
	Slot                    int
	Mask                    smask.Mask
	Host                    string
	Port                    int
	Load                    int
	DiskFreeKB, DiskTotalKB int64
	DiskNumFS               int
	RefA, RefR              int64
	Flags                   Flags
}

// Snapshot copies the fields SelServer needs under a brief lock.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	free := s.DiskFreeKB - s.adjustedFreeKB
	if free < 0 {
		free = 0
	}
	return Snapshot{
		Slot: s.Slot, Mask: s.Mask, Host: s.Host, Port: s.Port,
		Load: s.Load, DiskFreeKB: free, DiskTotalKB: s.DiskTotalKB,
		DiskNumFS: s.DiskNumFS, RefA: s.RefA, RefR: s.RefR, Flags: s.Flags,
	}
}

// ReportUsage applies a ping/usage reply, clearing the provisional
// space adjustment (a real report supersedes it).
func (s *Server) ReportUsage(load int, freeKB, totalKB int64, numFS int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Load = load
	s.DiskFreeKB = freeKB
	s.DiskTotalKB = totalKB
	s.DiskNumFS = numFS
	s.adjustedFreeKB = 0
	s.missedPings = 0
}

// AdjustFree provisionally debits adj bytes (as KB) from the
// server's tracked free space after a write selection
// (SPEC_FULL.md §4 "space-adjust-per-selection").
func (s *Server) AdjustFree(adjKB int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustedFreeKB += adjKB
}

// BumpRefA/BumpRefR increment the short-window counters the by-ref
// policy and by-load tie-break use.
func (s *Server) BumpRefA() {
	s.mu.Lock()
	s.RefA++
	s.mu.Unlock()
}

func (s *Server) BumpRefR() {
	s.mu.Lock()
	s.RefR++
	s.mu.Unlock()
}

// ResetRefs accumulates the current window into lifetime totals and
// zeroes the current counters (spec.md §4.6 "Reference reset").
func (s *Server) ResetRefs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefALifetime += s.RefA
	s.RefRLifetime += s.RefR
	s.RefA = 0
	s.RefR = 0
}

// RecordPingMiss returns true once the server has missed two
// consecutive ping replies, meaning it must be declared dead
// (spec.md §4.6, §8 "Ping-miss twice causes drop").
func (s *Server) RecordPingMiss() (dead bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missedPings++
	return s.missedPings >= 2
}

// RecordAlive clears the missed-ping counter — "one miss followed by
// any message restores active state" (spec.md §8).
func (s *Server) RecordAlive() {
	s.mu.Lock()
	s.missedPings = 0
	s.mu.Unlock()
}

// SetFlags mutates the server's flags under lock.
func (s *Server) SetFlags(mutate func(*Flags)) {
	s.mu.Lock()
	mutate(&s.Flags)
	s.mu.Unlock()
}

// GetFlags copies the current flags.
func (s *Server) GetFlags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Flags
}
