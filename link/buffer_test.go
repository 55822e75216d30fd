package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPoolObtainRelease(t *testing.T) {
	p := NewBufferPool([]int{64, 1024}, 0)

	buf := p.Obtain(10)
	require.Len(t, buf, 10)
	require.Equal(t, 64, cap(buf))

	p.Release(buf)
	require.EqualValues(t, 0, p.InUse())

	buf2 := p.Obtain(2000)
	require.Len(t, buf2, 2000)
	require.Equal(t, 2000, cap(buf2), "oversize request allocates unpooled")
}

func TestBufferPoolCap(t *testing.T) {
	p := NewBufferPool([]int{1024}, 1024)

	first := p.Obtain(100)
	require.EqualValues(t, 1024, p.InUse())

	second := p.Obtain(100)
	require.Len(t, second, 100, "over cap falls back to synchronous unpooled buffer")
	require.Equal(t, 100, cap(second))

	p.Release(first)
	require.EqualValues(t, 0, p.InUse())
}

func TestBufferPoolReuse(t *testing.T) {
	p := NewBufferPool([]int{256}, 0)
	a := p.Obtain(200)
	p.Release(a)
	b := p.Obtain(200)
	require.Equal(t, cap(a), cap(b))
}
