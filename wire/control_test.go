package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocateRequestFormat(t *testing.T) {
	require.Equal(t, "7 select r /data/file\n", LocateRequest(7, false, 'r', "/data/file"))
	require.Equal(t, "7 selects w /data/file\n", LocateRequest(7, true, 'w', "/data/file"))
}

func TestParseLocateReplyVariants(t *testing.T) {
	try, err := ParseLocateReply("!try host.example:1094")
	require.NoError(t, err)
	require.Equal(t, "host.example:1094", try.Try)

	wait, err := ParseLocateReply("!wait 5")
	require.NoError(t, err)
	require.Equal(t, 5, wait.Wait)

	fail, err := ParseLocateReply("?err no such file")
	require.NoError(t, err)
	require.Equal(t, "no such file", fail.Err)

	_, err = ParseLocateReply("garbage")
	require.Error(t, err)
}

func TestParseAddPath(t *testing.T) {
	r, w, s := ParseAddPath("rws")
	require.True(t, r)
	require.True(t, w)
	require.True(t, s)

	r, w, s = ParseAddPath("r")
	require.True(t, r)
	require.False(t, w)
	require.False(t, s)
}

func TestAdminLineRoundTrip(t *testing.T) {
	al, err := ParseAdminLine("42 lsc *.example.com extra")
	require.NoError(t, err)
	require.Equal(t, "42", al.ReqID)
	require.Equal(t, "lsc", al.Verb)
	require.Equal(t, "*.example.com", al.Target)
	require.Equal(t, []string{"extra"}, al.Args)

	_, err = ParseAdminLine("42 lsc")
	require.Error(t, err)
}

func TestAdminAckAndError(t *testing.T) {
	require.Equal(t, `<resp id="42"><rc>0</rc><sent>3</sent></resp>`+"\n", AdminAck("42", 3))
	require.Equal(t, `<resp id="42"><rc>1</rc><msg>no match</msg></resp>`+"\n", AdminError("42", 1, "no match"))
}

func TestLoginLineRoundTrip(t *testing.T) {
	l := LoginLine{Username: "alice", Role: "user", Port: 1095, NoStage: true}
	encoded := l.Encode()
	require.Equal(t, "login alice user port 1095 nostage", encoded)

	parsed, err := ParseLoginLine([]string{"alice", "user", "port", "1095", "nostage"})
	require.NoError(t, err)
	require.Equal(t, l, parsed)
}

func TestParseLoginLineRejectsTooFew(t *testing.T) {
	_, err := ParseLoginLine([]string{"alice"})
	require.Error(t, err)
}

func TestStateReplyRoundTrip(t *testing.T) {
	have, err := ParseStateReply(HaveLine('r', "/data/file"))
	require.NoError(t, err)
	require.Equal(t, StateReply{Kind: 'h', Mode: 'r', Path: "/data/file"}, have)

	bounce, err := ParseStateReply(BounceLine("/data/file"))
	require.NoError(t, err)
	require.Equal(t, StateReply{Kind: 'b', Path: "/data/file"}, bounce)

	gone, err := ParseStateReply(GoneLine("/data/file"))
	require.NoError(t, err)
	require.Equal(t, StateReply{Kind: 'g', Path: "/data/file"}, gone)

	_, err = ParseStateReply("nonsense")
	require.Error(t, err)
}

func TestAliveLineRoundTrip(t *testing.T) {
	require.Equal(t, "ping\n", PingLine())
	line := AliveLine(42, 1024, 2048, 2)
	require.Equal(t, "alive 42 1024 2048 2\n", line)

	load, freeKB, totalKB, numFS, err := ParseAliveLine([]string{"42", "1024", "2048", "2"})
	require.NoError(t, err)
	require.Equal(t, 42, load)
	require.Equal(t, int64(1024), freeKB)
	require.Equal(t, int64(2048), totalKB)
	require.Equal(t, 2, numFS)

	_, _, _, _, err = ParseAliveLine([]string{"42"})
	require.Error(t, err)
}

func TestStartLineRoundTrip(t *testing.T) {
	line := StartLine(102400, 2, 204800)
	require.Equal(t, "start 102400 2 204800\n", line)

	maxKB, numFS, totKB, err := ParseStartLine([]string{"102400", "2", "204800"})
	require.NoError(t, err)
	require.Equal(t, int64(102400), maxKB)
	require.Equal(t, 2, numFS)
	require.Equal(t, int64(204800), totKB)

	_, _, _, err = ParseStartLine([]string{"102400"})
	require.Error(t, err)
}
