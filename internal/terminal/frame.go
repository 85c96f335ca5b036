package terminal

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed length of a frame header in bytes
const HeaderSize = 8

// MaxPayload is the largest payload a single frame can carry
const MaxPayload = 0xFFFF

// Command identifies the operation (request) or outcome (reply) of a frame
type Command uint16

// Request commands
const (
	CmdUserWRQ       Command = 8
	CmdUserTempRRQ   Command = 9
	CmdGetDeviceInfo Command = 11
	CmdAttLogRRQ     Command = 13
	CmdConnect       Command = 1000
	CmdExit          Command = 1001
)

// Reply commands
const (
	CmdData     Command = 1501 // one chunk of a multi-frame reply
	CmdAckOK    Command = 2000
	CmdAckError Command = 2001
)

func (c Command) String() string {
	switch c {
	case CmdUserWRQ:
		return "USER_WRQ"
	case CmdUserTempRRQ:
		return "USERTEMP_RRQ"
	case CmdGetDeviceInfo:
		return "GET_DEVICE_INFO"
	case CmdAttLogRRQ:
		return "ATTLOG_RRQ"
	case CmdConnect:
		return "CONNECT"
	case CmdExit:
		return "EXIT"
	case CmdData:
		return "DATA"
	case CmdAckOK:
		return "ACK_OK"
	case CmdAckError:
		return "ACK_ERROR"
	}
	return fmt.Sprintf("CMD(%d)", uint16(c))
}

// Frame is one message on the wire:
// command, sessionId, replyId and dataLength as little-endian uint16, then the payload.
type Frame struct {
	Command   Command
	SessionID uint16
	ReplyID   uint16
	Payload   []byte
}

// MarshalBinary encodes the frame header and payload
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds frame limit", len(f.Payload))
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(f.Command))
	binary.LittleEndian.PutUint16(buf[2:4], f.SessionID)
	binary.LittleEndian.PutUint16(buf[4:6], f.ReplyID)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// WriteFrame writes f to w in a single call
func WriteFrame(w io.Writer, f Frame) error {
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads exactly one frame from r
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	f := Frame{
		Command:   Command(binary.LittleEndian.Uint16(header[0:2])),
		SessionID: binary.LittleEndian.Uint16(header[2:4]),
		ReplyID:   binary.LittleEndian.Uint16(header[4:6]),
	}

	size := int(binary.LittleEndian.Uint16(header[6:8]))
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("read %d byte payload: %w", size, err)
		}
	}
	return f, nil
}
