package smask

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearTest(t *testing.T) {
	var m Mask
	require.True(t, m.IsZero())
	m.Set(0)
	m.Set(130)
	m.Set(255)
	require.True(t, m.Test(0))
	require.True(t, m.Test(130))
	require.True(t, m.Test(255))
	require.False(t, m.Test(1))
	require.False(t, m.IsZero())

	m.Clear(130)
	require.False(t, m.Test(130))
}

func TestOrAndAndNot(t *testing.T) {
	a := FromSlot(1).Or(FromSlot(2))
	b := FromSlot(2).Or(FromSlot(3))
	require.Equal(t, FromSlot(2), a.And(b))
	require.Equal(t, FromSlot(1), a.AndNot(b))
}

func TestSubset(t *testing.T) {
	rw := FromSlot(1)
	ro := FromSlot(1).Or(FromSlot(2))
	require.True(t, rw.IsSubsetOf(ro))
	require.False(t, ro.IsSubsetOf(rw))
}

func TestSlotsAndCount(t *testing.T) {
	m := FromSlot(0).Or(FromSlot(63)).Or(FromSlot(64)).Or(FromSlot(200))
	require.Equal(t, []int{0, 63, 64, 200}, m.Slots())
	require.Equal(t, 4, m.Count())
}
