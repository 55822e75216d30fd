package prepare

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeForwarder struct {
	down     bool
	added    []Request
	canceled []string
	full     []Request
}

func (f *fakeForwarder) Add(req Request) error {
	if f.down {
		return assertErr
	}
	f.added = append(f.added, req)
	return nil
}

func (f *fakeForwarder) Cancel(reqid string) error {
	f.canceled = append(f.canceled, reqid)
	return nil
}

func (f *fakeForwarder) FullList() ([]Request, error) {
	if f.down {
		return nil, assertErr
	}
	return f.full, nil
}

var assertErr = errDown{}

type errDown struct{}

func (errDown) Error() string { return "if down" }

func newTestQueue(t *testing.T, fwd Forwarder) *Queue {
	t.Helper()
	dir := t.TempDir()
	q, err := New(filepath.Join(dir, "prepare.db"), fwd)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueueAddAndExists(t *testing.T) {
	fwd := &fakeForwarder{}
	q := newTestQueue(t, fwd)

	require.NoError(t, q.Add("r1", "alice", 2, "stage", "/data/a", nil, false))
	require.True(t, q.Exists("/data/a"))
	require.False(t, q.Exists("/data/b"))
	require.Len(t, fwd.added, 1)
}

func TestQueueDelRemovesEntry(t *testing.T) {
	fwd := &fakeForwarder{}
	q := newTestQueue(t, fwd)

	require.NoError(t, q.Add("r1", "alice", 0, "stage", "/data/a", nil, false))
	require.NoError(t, q.Del("r1"))
	require.False(t, q.Exists("/data/a"))
	require.Equal(t, []string{"r1"}, fwd.canceled)
}

func TestQueueGoneClearsByPath(t *testing.T) {
	fwd := &fakeForwarder{}
	q := newTestQueue(t, fwd)

	require.NoError(t, q.Add("r1", "alice", 0, "stage", "/data/a", nil, false))
	q.Gone("/data/a")
	require.False(t, q.Exists("/data/a"))
}

func TestQueueAddFailsWhileIFDown(t *testing.T) {
	fwd := &fakeForwarder{down: true}
	q := newTestQueue(t, fwd)

	err := q.Add("r1", "alice", 0, "stage", "/data/a", nil, false)
	require.ErrorIs(t, err, ErrIFDown)
}

func TestQueueResetClearsIFDownAndReplacesTable(t *testing.T) {
	fwd := &fakeForwarder{down: true}
	q := newTestQueue(t, fwd)

	require.ErrorIs(t, q.Add("r1", "alice", 0, "stage", "/data/a", nil, false), ErrIFDown)

	fwd.down = false
	fwd.full = []Request{{ReqID: "r2", Path: "/data/b", Priority: 1}}
	require.NoError(t, q.Reset())

	require.True(t, q.Exists("/data/b"))
	require.False(t, q.Exists("/data/a"))
	require.NoError(t, q.Add("r3", "bob", 0, "stage", "/data/c", nil, false))
}

func TestQueueScrubRemovesResidentPaths(t *testing.T) {
	fwd := &fakeForwarder{}
	q := newTestQueue(t, fwd)

	require.NoError(t, q.Add("r1", "alice", 0, "stage", "/data/a", nil, false))
	require.NoError(t, q.Add("r2", "alice", 0, "stage", "/data/b", nil, false))

	removed := q.Scrub(func(path string) bool { return path == "/data/a" })
	require.Equal(t, 1, removed)
	require.False(t, q.Exists("/data/a"))
	require.True(t, q.Exists("/data/b"))
}

func TestQueueScrubNotifiesNonQuietCompletion(t *testing.T) {
	fwd := &fakeForwarder{}
	q := newTestQueue(t, fwd)

	var notified []Request
	q.SetNotifier(func(req Request) { notified = append(notified, req) })

	require.NoError(t, q.Add("loud", "alice", 0, "wrn", "/data/a", []byte("hint"), false))
	require.NoError(t, q.Add("quiet", "alice", 0, "wrnq", "/data/b", nil, true))

	removed := q.Scrub(func(path string) bool { return true })
	require.Equal(t, 2, removed)
	require.Len(t, notified, 1)
	require.Equal(t, "loud", notified[0].ReqID)
	require.Equal(t, []byte("hint"), notified[0].Info)
}

func TestQueueListOrdersByPriorityThenTime(t *testing.T) {
	fwd := &fakeForwarder{}
	q := newTestQueue(t, fwd)

	require.NoError(t, q.Add("low", "alice", 0, "stage", "/data/a", nil, false))
	require.NoError(t, q.Add("high", "alice", 3, "stage", "/data/b", nil, false))

	list := q.List()
	require.Len(t, list, 2)
	require.Equal(t, "high", list[0].ReqID)
	require.Equal(t, "low", list[1].ReqID)
}

func TestQueuePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "prepare.db")

	q1, err := New(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, q1.Add("r1", "alice", 0, "stage", "/data/a", nil, false))
	require.NoError(t, q1.Close())

	q2, err := New(dbPath, nil)
	require.NoError(t, err)
	defer q2.Close()
	require.True(t, q2.Exists("/data/a"))
}
