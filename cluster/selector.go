package cluster

import (
	"sort"

	"github.com/rfsd/rfsd/config"
)

// Policy selects between the two SelServer strategies of spec.md §4.6.
type Policy int

const (
	// PolicyByLoad scores candidates by a weighted blend of load
	// components; it is the default whenever any capacity weight is
	// nonzero.
	PolicyByLoad Policy = iota
	// PolicyByRef is plain round robin on the appropriate reference
	// counter.
	PolicyByRef
)

// Mode distinguishes a read-only selection from one that must tolerate
// writes (spec.md §4.6 "required mode").
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Purpose distinguishes which reference counter a selection biases
// a tie-break on (spec.md §4.6: "RefA for allocation/staging, RefR
// for redirection").
type Purpose int

const (
	PurposeAllocation Purpose = iota
	PurposeRedirection
)

// Selector implements SelServer's candidate scoring and eligibility
// filtering, independent of path resolution (that lives in
// Manager.SelServer, which feeds this the candidate set).
type Selector struct {
	weights config.SchedWeights
	policy  Policy
}

// NewSelector derives a Selector's policy from the configured
// weights: by-load is the default whenever any capacity weight is
// nonzero (spec.md §4.6), else by-ref.
func NewSelector(weights config.SchedWeights) Selector {
	policy := PolicyByRef
	if weights.CPU != 0 || weights.IO != 0 || weights.Mem != 0 || weights.Pag != 0 || weights.RunQ != 0 {
		policy = PolicyByLoad
	}
	return Selector{weights: weights, policy: policy}
}

// Reason explains why PickResult carries no server.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonOverloaded
	ReasonSuspended
	ReasonOffline
	ReasonNoEligible
)

// PickResult is the outcome of scoring one candidate set.
type PickResult struct {
	Server *Server
	Reason Reason
}

// candidate pairs the Server a Snapshot was taken from with the
// snapshot itself, so scoring can work on plain values while Pick
// still returns the live *Server.
type candidate struct {
	srv  *Server
	snap Snapshot
}

// eligible applies the filters of spec.md §4.6: bound, not offline,
// not suspend, not (no-stage when staging is required), load <=
// maxLoad, disk-free >= diskMin, disk-total >= diskMin.
func (sel Selector) eligible(s Snapshot, requireStage bool, diskMinKB int64) bool {
	if !s.Flags.Bound || s.Flags.Disable {
		return false
	}
	if s.Flags.Offline {
		return false
	}
	if s.Flags.Suspend {
		return false
	}
	if requireStage && s.Flags.NoStage {
		return false
	}
	if float64(s.Load) > sel.weights.MaxLoad {
		return false
	}
	if s.DiskFreeKB < diskMinKB || s.DiskTotalKB < diskMinKB {
		return false
	}
	return true
}

// Pick scores servers (already filtered down to the ones whose slot
// bit is set in the caller's primary/alternate mask) and returns a
// chosen Server, or a Reason explaining why none was chosen.
// diskMinKB is the configured space floor.
func (sel Selector) Pick(servers []*Server, mode Mode, purpose Purpose, requireStage bool, diskMinKB int64) PickResult {
	if len(servers) == 0 {
		return PickResult{Reason: ReasonNoEligible}
	}

	candidates := make([]candidate, len(servers))
	for i, s := range servers {
		candidates[i] = candidate{srv: s, snap: s.Snapshot()}
	}

	var eligible []candidate
	allSuspended, allOffline := true, true
	for _, c := range candidates {
		if !c.snap.Flags.Suspend {
			allSuspended = false
		}
		if !c.snap.Flags.Offline {
			allOffline = false
		}
		if sel.eligible(c.snap, requireStage, diskMinKB) {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 {
		switch {
		case allOffline:
			return PickResult{Reason: ReasonOffline}
		case allSuspended:
			return PickResult{Reason: ReasonSuspended}
		default:
			return PickResult{Reason: ReasonOverloaded}
		}
	}

	if sel.policy == PolicyByRef {
		return PickResult{Server: sel.pickByRef(eligible, purpose)}
	}
	return PickResult{Server: sel.pickByLoad(eligible, purpose)}
}

func refOf(c candidate, purpose Purpose) int64 {
	if purpose == PurposeAllocation {
		return c.snap.RefA
	}
	return c.snap.RefR
}

// pickByRef chooses the reachable server with the smallest current
// reference counter, ties broken by slot id.
func (sel Selector) pickByRef(candidates []candidate, purpose Purpose) *Server {
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := refOf(candidates[i], purpose), refOf(candidates[j], purpose)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].snap.Slot < candidates[j].snap.Slot
	})
	return candidates[0].srv
}

// score is the weighted by-load blend of spec.md §4.6. Snapshot.Load
// already holds the weighted cpu/mem/runq blend as one 0..100 figure
// (io and pag contribute 0; see sampleLoad in cmd/rfsd, which builds
// it on the data-server side), so score returns that figure as is;
// the blend itself happens where the usage report is assembled.
func (sel Selector) score(c candidate) float64 {
	return float64(c.snap.Load)
}

// pickByLoad scores every candidate, then picks the lowest score; ties
// within fuzz percent are broken by the purpose-appropriate reference
// counter, then by slot id (spec.md §4.6).
func (sel Selector) pickByLoad(candidates []candidate, purpose Purpose) *Server {
	type scored struct {
		c  candidate
		sc float64
	}
	scoredList := make([]scored, len(candidates))
	best := sel.score(candidates[0])
	for i, c := range candidates {
		sc := sel.score(c)
		scoredList[i] = scored{c: c, sc: sc}
		if sc < best {
			best = sc
		}
	}

	var tied []candidate
	for _, sc := range scoredList {
		if sc.sc-best <= sel.weights.Fuzz {
			tied = append(tied, sc.c)
		}
	}
	sort.SliceStable(tied, func(i, j int) bool {
		ri, rj := refOf(tied[i], purpose), refOf(tied[j], purpose)
		if ri != rj {
			return ri < rj
		}
		return tied[i].snap.Slot < tied[j].snap.Slot
	})
	return tied[0].srv
}
