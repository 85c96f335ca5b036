package terminal

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameHeaderLayout(t *testing.T) {
	f := Frame{Command: CmdAttLogRRQ, SessionID: 0x1234, ReplyID: 7, Payload: []byte("abc")}

	buf, err := f.MarshalBinary()
	require.NoError(t, err)

	// little-endian command, session, reply, length
	want := []byte{13, 0, 0x34, 0x12, 7, 0, 3, 0, 'a', 'b', 'c'}
	assert.Equal(t, want, buf)
}

func TestReadFrameRoundTrip(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, WriteFrame(&b, Frame{Command: CmdConnect, SessionID: 1, ReplyID: 1}))
	require.NoError(t, WriteFrame(&b, Frame{Command: CmdData, SessionID: 1, ReplyID: 2, Payload: []byte("1\t2025-01-06 08:00:00\t0")}))

	first, err := ReadFrame(&b)
	require.NoError(t, err)
	assert.Equal(t, CmdConnect, first.Command)
	assert.Empty(t, first.Payload)

	second, err := ReadFrame(&b)
	require.NoError(t, err)
	assert.Equal(t, CmdData, second.Command)
	assert.Equal(t, uint16(2), second.ReplyID)
	assert.Equal(t, "1\t2025-01-06 08:00:00\t0", string(second.Payload))

	_, err = ReadFrame(&b)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	buf, err := Frame{Command: CmdAckOK, Payload: []byte("hello")}.MarshalBinary()
	require.NoError(t, err)

	_, err = ReadFrame(bytes.NewReader(buf[:len(buf)-2]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFramePayloadLimit(t *testing.T) {
	_, err := Frame{Command: CmdData, Payload: make([]byte, MaxPayload+1)}.MarshalBinary()
	assert.Error(t, err)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "USERTEMP_RRQ", CmdUserTempRRQ.String())
	assert.Equal(t, "CMD(42)", Command(42).String())
}
