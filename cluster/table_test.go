package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginAllocatesSlot(t *testing.T) {
	tbl := NewTable()
	srv, err := tbl.Login("a.example", 1094)
	require.NoError(t, err)
	require.Equal(t, 0, srv.Slot)
	require.True(t, srv.Mask.Test(0))
	require.True(t, srv.GetFlags().Bound)
}

func TestLoginRejectsDoubleBind(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Login("a.example", 1094)
	require.NoError(t, err)
	_, err = tbl.Login("a.example", 1094)
	require.Error(t, err)
}

func TestLoginRebindsAfterDisconnect(t *testing.T) {
	tbl := NewTable()
	srv, _ := tbl.Login("a.example", 1094)
	slot := srv.Slot
	instance := srv.Instance

	srv.SetFlags(func(f *Flags) { f.Bound = false; f.Offline = true })

	rebound, err := tbl.Login("a.example", 1094)
	require.NoError(t, err)
	require.Equal(t, slot, rebound.Slot, "same host reuses its own slot")
	require.Greater(t, rebound.Instance, instance, "instance counter increments on rebind")
	require.False(t, rebound.GetFlags().Offline)
}

func TestReleaseFreesSlotForReuse(t *testing.T) {
	tbl := NewTable()
	srv, _ := tbl.Login("a.example", 1094)
	tbl.Release(srv.Slot)

	other, err := tbl.Login("b.example", 1094)
	require.NoError(t, err)
	require.Equal(t, srv.Slot, other.Slot)
}

func TestTableMaskUnionOfBound(t *testing.T) {
	tbl := NewTable()
	a, _ := tbl.Login("a.example", 1)
	b, _ := tbl.Login("b.example", 2)
	union := tbl.Mask()
	require.True(t, union.Test(a.Slot))
	require.True(t, union.Test(b.Slot))
}
