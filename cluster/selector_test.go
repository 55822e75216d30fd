package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rfsd/rfsd/config"
)

func freshServer(slot int, load int, refA, refR int64) *Server {
	return &Server{
		Slot:        slot,
		Load:        load,
		DiskFreeKB:  1 << 20,
		DiskTotalKB: 1 << 22,
		RefA:        refA,
		RefR:        refR,
		Flags:       Flags{Bound: true},
	}
}

func TestSelectorByLoadFuzzTieBreak(t *testing.T) {
	// spec.md §8 scenario: A (load 50, RefA 3) and B (load 52, RefA 1),
	// fuzz=5 -> tied within fuzz, B wins on lower RefA.
	weights := config.SchedWeights{CPU: 1, Fuzz: 5, MaxLoad: 100}
	sel := NewSelector(weights)
	require.Equal(t, PolicyByLoad, sel.policy)

	a := freshServer(0, 50, 3, 0)
	b := freshServer(1, 52, 1, 0)

	result := sel.Pick([]*Server{a, b}, ModeRead, PurposeAllocation, false, 0)
	require.Equal(t, ReasonNone, result.Reason)
	require.Same(t, b, result.Server)
}

func TestSelectorByLoadPicksLowestOutsideFuzz(t *testing.T) {
	weights := config.SchedWeights{CPU: 1, Fuzz: 1, MaxLoad: 100}
	sel := NewSelector(weights)

	a := freshServer(0, 10, 0, 0)
	b := freshServer(1, 90, 0, 0)

	result := sel.Pick([]*Server{a, b}, ModeRead, PurposeAllocation, false, 0)
	require.Same(t, a, result.Server)
}

func TestSelectorByRefRoundRobin(t *testing.T) {
	weights := config.SchedWeights{} // all zero -> PolicyByRef
	sel := NewSelector(weights)
	require.Equal(t, PolicyByRef, sel.policy)

	a := freshServer(0, 0, 5, 0)
	b := freshServer(1, 0, 2, 0)

	result := sel.Pick([]*Server{a, b}, ModeRead, PurposeAllocation, false, 0)
	require.Same(t, b, result.Server)
}

func TestSelectorExcludesOfflineAndSuspend(t *testing.T) {
	weights := config.SchedWeights{}
	sel := NewSelector(weights)

	offline := freshServer(0, 0, 0, 0)
	offline.Flags.Offline = true
	ok := freshServer(1, 0, 0, 0)
	suspended := freshServer(2, 0, 0, 0)
	suspended.Flags.Suspend = true

	result := sel.Pick([]*Server{offline, suspended, ok}, ModeRead, PurposeAllocation, false, 0)
	require.Same(t, ok, result.Server)
}

func TestSelectorAllOfflineReportsReason(t *testing.T) {
	weights := config.SchedWeights{}
	sel := NewSelector(weights)

	a := freshServer(0, 0, 0, 0)
	a.Flags.Offline = true
	b := freshServer(1, 0, 0, 0)
	b.Flags.Offline = true

	result := sel.Pick([]*Server{a, b}, ModeRead, PurposeAllocation, false, 0)
	require.Nil(t, result.Server)
	require.Equal(t, ReasonOffline, result.Reason)
}

func TestSelectorRequireStageExcludesNoStage(t *testing.T) {
	weights := config.SchedWeights{}
	sel := NewSelector(weights)

	noStage := freshServer(0, 0, 0, 0)
	noStage.Flags.NoStage = true
	can := freshServer(1, 0, 0, 0)

	result := sel.Pick([]*Server{noStage, can}, ModeRead, PurposeAllocation, true, 0)
	require.Same(t, can, result.Server)
}

func TestSelectorDiskFloorExcludesLowSpace(t *testing.T) {
	weights := config.SchedWeights{}
	sel := NewSelector(weights)

	tight := freshServer(0, 0, 0, 0)
	tight.DiskFreeKB = 10
	roomy := freshServer(1, 0, 0, 0)

	result := sel.Pick([]*Server{tight, roomy}, ModeRead, PurposeAllocation, false, 1<<10)
	require.Same(t, roomy, result.Server)
}
