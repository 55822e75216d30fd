package link

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipe() (*Link, net.Conn) {
	a, b := net.Pipe()
	return New(a, nil), b
}

func TestGetLineAndTokens(t *testing.T) {
	l, remote := pipe()
	defer remote.Close()

	go func() {
		_, _ = remote.Write([]byte("login alice rdr port 1094\n"))
	}()

	line, err := l.GetLine()
	require.NoError(t, err)
	require.Equal(t, "login alice rdr port 1094", line)

	l.SetLine(line)
	require.Equal(t, "login", l.GetToken())
	require.Equal(t, "alice", l.GetToken())
	require.Equal(t, "rdr", l.GetToken())
	require.Equal(t, "port", l.GetToken())
	require.Equal(t, "1094", l.GetToken())
	require.Equal(t, "", l.GetToken())
}

func TestGetLineEOF(t *testing.T) {
	l, remote := pipe()
	remote.Close()

	_, err := l.GetLine()
	require.ErrorIs(t, err, io.EOF)
	require.True(t, l.Closed())
}

func TestSendRoundTrip(t *testing.T) {
	l, remote := pipe()
	defer remote.Close()

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		n, _ := io.ReadFull(remote, buf)
		done <- buf[:n]
	}()

	require.NoError(t, l.Send([]byte("hello")))
	require.Equal(t, []byte("hello"), <-done)
}

func TestPoolRebind(t *testing.T) {
	pool := NewPool(2)
	_, remote := net.Pipe()
	defer remote.Close()

	l := New(remote, pool)
	l.Close(true)
	l.Recycle()

	_, remote2 := net.Pipe()
	defer remote2.Close()
	reused := pool.Rebind(remote2)
	require.Same(t, l, reused)
	require.False(t, reused.Closed())
}
