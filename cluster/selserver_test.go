package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rfsd/rfsd/config"
	"github.com/rfsd/rfsd/internal/xerr"
	"github.com/rfsd/rfsd/smask"
)

func TestSelServerReadyOnWarmEntry(t *testing.T) {
	m := NewManager(config.Default(), nil)
	srv, err := m.BindServer("a.example", 1094)
	require.NoError(t, err)

	m.Paths.Insert("/data", srv.Mask, true, false, false)
	m.Cache.AddFile("/data/file", srv.Mask, false, 0)

	outcome := m.SelServer("/data/file", ModeRead, false)
	require.Equal(t, xerr.KindReady, outcome.Kind)
	addr, ok := outcome.Payload.(ServerAddr)
	require.True(t, ok)
	require.Equal(t, "a.example", addr.Host)
	require.Equal(t, int64(1), srv.RefR)
}

func TestSelServerRetryOnColdLookup(t *testing.T) {
	m := NewManager(config.Default(), nil)

	outcome := m.SelServer("/data/unseen", ModeRead, false)
	require.Equal(t, xerr.KindRetry, outcome.Kind)
	require.Greater(t, outcome.Seconds, 0)
}

func TestSelServerRetryOnBounce(t *testing.T) {
	m := NewManager(config.Default(), nil)
	srv, _ := m.BindServer("a.example", 1094)

	m.Paths.Insert("/data", srv.Mask, true, false, false)
	m.Cache.Bounce("/data/file", srv.Mask)

	outcome := m.SelServer("/data/file", ModeRead, false)
	require.Equal(t, xerr.KindRetry, outcome.Kind)
}

func TestSelServerFailureWhenNoServerPossible(t *testing.T) {
	m := NewManager(config.Default(), nil)

	// seed then immediately supersede with an empty real report, so
	// the entry resolves to "no capability anywhere" rather than
	// staying provisional.
	m.Cache.AddFile("/data/file", smask.Mask{}, false, 10*time.Millisecond)
	m.Cache.AddFile("/data/file", smask.Mask{}, false, 0)

	outcome := m.SelServer("/data/file", ModeRead, false)
	require.Equal(t, xerr.KindFailure, outcome.Kind)
	require.Equal(t, xerr.CodeNoServer, outcome.Code)
}

func TestSelServerFailureWhenStagingRequiredButNotAllowed(t *testing.T) {
	m := NewManager(config.Default(), nil)
	srv, _ := m.BindServer("a.example", 1094)

	m.Paths.Insert("/data", srv.Mask, false, false, true) // stageable only
	m.Cache.AddFile("/data/file", smask.Mask{}, false, 10*time.Millisecond)
	m.Cache.AddFile("/data/file", smask.Mask{}, false, 0)

	outcome := m.SelServer("/data/file", ModeRead, false)
	require.Equal(t, xerr.KindFailure, outcome.Kind)
	require.Equal(t, xerr.CodeNoServer, outcome.Code)
}

func TestSelServerStagesWhenAllowed(t *testing.T) {
	m := NewManager(config.Default(), nil)
	srv, _ := m.BindServer("a.example", 1094)

	m.Paths.Insert("/data", srv.Mask, false, false, true)
	m.Cache.AddFile("/data/file", smask.Mask{}, false, 10*time.Millisecond)
	m.Cache.AddFile("/data/file", smask.Mask{}, false, 0)

	outcome := m.SelServer("/data/file", ModeRead, true)
	require.Equal(t, xerr.KindReady, outcome.Kind)
	require.Equal(t, int64(1), srv.RefA)
}
