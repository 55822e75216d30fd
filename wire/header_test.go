package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReqHeaderRoundTrip(t *testing.T) {
	h := ReqHeader{StreamID: 7, Opcode: OpRead, Dlen: 4096}
	h.Params[0] = 0xAB

	decoded, err := DecodeReqHeader(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

func TestRespHeaderRoundTrip(t *testing.T) {
	h := RespHeader{StreamID: 7, Status: StatusWait, Dlen: 0}
	decoded, err := DecodeRespHeader(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := DecodeReqHeader(make([]byte, ReqHeaderLen-1))
	require.ErrorIs(t, err, ErrShortHeader)

	_, err = DecodeRespHeader(make([]byte, RespHeaderLen-1))
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestPair64RoundTrip(t *testing.T) {
	v := uint64(1)<<40 | 12345
	hi, lo := SplitPair64(v)
	require.Equal(t, v, JoinPair64(hi, lo))
}

func TestAsyncHeaderUsesReservedStreamID(t *testing.T) {
	h := AsyncHeader{Code: AsyncWt, Dlen: 4}
	buf := h.Encode()
	resp, err := DecodeRespHeader(buf)
	require.NoError(t, err)
	require.EqualValues(t, AsyncStreamID, resp.StreamID)
	require.EqualValues(t, AsyncWt, resp.Status)
}
