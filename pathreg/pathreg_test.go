package pathreg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rfsd/rfsd/smask"
)

func TestLongestPrefixMatch(t *testing.T) {
	r := New()
	r.Insert("/", smask.FromSlot(0), true, false, false)
	r.Insert("/tmp", smask.FromSlot(1), true, true, true)
	r.Insert("/tmp/data", smask.FromSlot(2), true, false, true)

	info, ok := r.Find("/tmp/data/hello")
	require.True(t, ok)
	require.True(t, info.ROVec.Test(2))
	require.False(t, info.ROVec.Test(1))

	info, ok = r.Find("/tmp/other")
	require.True(t, ok)
	require.True(t, info.ROVec.Test(1))

	info, ok = r.Find("/etc/passwd")
	require.True(t, ok)
	require.True(t, info.ROVec.Test(0))
}

func TestIdempotentAddpath(t *testing.T) {
	r := New()
	m := smask.FromSlot(3)
	a := r.Insert("/d", m, true, true, false)
	b := r.Insert("/d", m, true, true, false)
	require.Equal(t, a, b)
}

func TestRemoveClearsBitNotPattern(t *testing.T) {
	r := New()
	m := smask.FromSlot(5)
	r.Insert("/d", m, true, true, true)
	r.Remove(m)

	info, ok := r.Find("/d/x")
	require.True(t, ok, "pattern remains even with all-zero vectors")
	require.True(t, info.ROVec.IsZero())
}

func TestWildcardSuffix(t *testing.T) {
	r := New()
	m := smask.FromSlot(7)
	r.Insert("/tmp/data*", m, true, false, false)

	_, ok := r.Find("/tmp/dataset/foo")
	require.True(t, ok, "wildcard matches partial trailing segment")

	_, ok = r.Find("/tmp/other")
	require.False(t, ok)
}

func TestRWSubsetOfRO(t *testing.T) {
	r := New()
	m := smask.FromSlot(1)
	info := r.Insert("/d", m, false, true, false)
	require.True(t, info.RWVec.IsSubsetOf(info.ROVec), "writable claim implies readable")
}
