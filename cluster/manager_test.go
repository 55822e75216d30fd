package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rfsd/rfsd/config"
)

type recordingNotifier struct {
	notified []string
}

func (n *recordingNotifier) NotifyState(srv *Server, path string) error {
	n.notified = append(n.notified, path)
	return nil
}

func TestManagerBindServer(t *testing.T) {
	m := NewManager(config.Default(), nil)
	srv, err := m.BindServer("a.example", 1094)
	require.NoError(t, err)
	require.True(t, srv.GetFlags().Bound)
	require.Same(t, srv, m.Table.Get(srv.Slot))
}

func TestManagerAddPathSeedsCachedPaths(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewManager(config.Default(), notifier)
	srv, err := m.BindServer("a.example", 1094)
	require.NoError(t, err)

	// seed a cached lookup for a path under the new prefix before the
	// server declares it, as if another server's state reply arrived
	// first.
	m.Cache.AddFile("/data/one", srv.Mask, false, 0)

	matches := m.AddPath(srv, "/data", true, false, false)
	require.Contains(t, matches, "/data/one")
	require.Contains(t, notifier.notified, "/data/one")
}

func TestManagerResetRefCounts(t *testing.T) {
	m := NewManager(config.Default(), nil)
	srv, _ := m.BindServer("a.example", 1094)
	srv.BumpRefA()
	srv.BumpRefA()

	m.ResetRefCounts()
	require.Equal(t, int64(0), srv.RefA)
	require.Equal(t, int64(2), srv.RefALifetime)
}

func TestManagerDisconnectMarksOfflineImmediately(t *testing.T) {
	m := NewManager(config.Default(), nil)
	srv, _ := m.BindServer("a.example", 1094)

	m.Disconnect(srv)
	require.True(t, srv.GetFlags().Offline)
	require.False(t, srv.GetFlags().Bound)
}
