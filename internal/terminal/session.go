package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultCommandTimeout = 5 * time.Second
	defaultMaxChunks      = 4096
)

// DialFunc opens the transport to a terminal
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options tunes a Session
type Options struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration // bound on every command, including multi-chunk replies
	MaxChunks      int
	Dial           DialFunc
}

// Session is one connection to a terminal.
// Disconnected -> Connect -> Connected -> Disconnect -> Disconnected.
// The session and reply counters belong to the instance; create one Session per run.
type Session struct {
	addr string
	opts Options

	mu        sync.Mutex
	conn      net.Conn
	sessionID uint16
	replyID   uint16
}

// NewSession creates a disconnected session for addr (host:port)
func NewSession(addr string, opts Options) *Session {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = defaultMaxChunks
	}
	if opts.Dial == nil {
		d := &net.Dialer{}
		opts.Dial = d.DialContext
	}
	return &Session{addr: addr, opts: opts}
}

// Addr returns the terminal address
func (s *Session) Addr() string {
	return s.addr
}

// Connected reports whether the session holds an open transport
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Counters returns the current session id and last reply id
func (s *Session) Counters() (sessionID, replyID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.replyID
}

// Connect dials the terminal and performs the CONNECT handshake.
// The session proposes a random session id; a non-zero id in the
// terminal's reply replaces it.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	defer cancel()

	conn, err := s.opts.Dial(dialCtx, "tcp", s.addr)
	if err != nil {
		return &ConnectivityError{Addr: s.addr, Op: "dial", Err: err}
	}

	s.conn = conn
	s.sessionID = uint16(rand.IntN(0xFFFF)) + 1
	s.replyID = 0

	reply, _, err := s.roundTrip(ctx, CmdConnect, nil)
	if err != nil {
		return err
	}
	if reply.SessionID != 0 {
		s.sessionID = reply.SessionID
	}

	log.Printf("📡 Connected to device %s (session %d)", s.addr, s.sessionID)
	return nil
}

// Disconnect sends EXIT and closes the transport. Failures are logged,
// never returned, and calling it on a closed session is a no-op.
// It runs even when ctx is already cancelled.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}

	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CommandTimeout)
	defer cancel()

	if _, _, err := s.roundTrip(exitCtx, CmdExit, nil); err != nil {
		log.Printf("⚠️ Device %s: EXIT failed: %v", s.addr, err)
	}
	s.closeLocked()
	log.Printf("🔌 Disconnected from device %s", s.addr)
}

// GetDeviceInfo fetches terminal metadata
func (s *Session) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	payload, err := s.command(ctx, CmdGetDeviceInfo, nil)
	if err != nil {
		return nil, err
	}
	info, err := ParseDeviceInfo(payload)
	if err != nil {
		return nil, fmt.Errorf("decode device info: %w", err)
	}
	return info, nil
}

// GetAttendanceLogs fetches the raw punch buffer. The terminal returns its
// whole log; date filtering happens after decoding.
func (s *Session) GetAttendanceLogs(ctx context.Context) ([]byte, error) {
	return s.command(ctx, CmdAttLogRRQ, nil)
}

// GetUsers fetches the enrolled-user directory
func (s *Session) GetUsers(ctx context.Context) ([]User, error) {
	payload, err := s.command(ctx, CmdUserTempRRQ, nil)
	if err != nil {
		return nil, err
	}
	users, skipped := ParseUsers(payload)
	if skipped > 0 {
		log.Printf("⚠️ %s: dropped %d unreadable user directory lines", s.addr, skipped)
	}
	return users, nil
}

// PutUser writes (or overwrites) one user on the terminal
func (s *Session) PutUser(ctx context.Context, u User) error {
	if u.DeviceUserID == "" {
		return errors.New("device user id is required")
	}
	_, err := s.command(ctx, CmdUserWRQ, []byte(u.Line()))
	return err
}

func (s *Session) command(ctx context.Context, cmd Command, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, data, err := s.roundTrip(ctx, cmd, payload)
	return data, err
}

// roundTrip sends one request and collects its reply: zero or more DATA
// chunks terminated by ACK_OK. The whole exchange shares one deadline.
// Any failure closes the transport since the stream position is lost.
// Callers hold s.mu.
func (s *Session) roundTrip(ctx context.Context, cmd Command, payload []byte) (Frame, []byte, error) {
	conn := s.conn
	if conn == nil {
		return Frame{}, nil, &ConnectivityError{Addr: s.addr, Op: cmd.String(), Err: ErrNotConnected}
	}

	fail := func(err error) (Frame, []byte, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.closeLocked()
		return Frame{}, nil, &ConnectivityError{Addr: s.addr, Op: cmd.String(), Err: err}
	}

	deadline := time.Now().Add(s.opts.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fail(err)
	}
	// A cancellation that races the reply must land before the next command
	// arms its own deadline.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = conn.SetDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	s.replyID++
	req := Frame{Command: cmd, SessionID: s.sessionID, ReplyID: s.replyID, Payload: payload}
	if err := WriteFrame(conn, req); err != nil {
		return fail(err)
	}

	var data []byte
	for chunks := 0; ; {
		reply, err := ReadFrame(conn)
		if err != nil {
			return fail(err)
		}
		if reply.ReplyID != req.ReplyID {
			return fail(fmt.Errorf("%w: reply id %d, want %d", ErrUnexpectedReply, reply.ReplyID, req.ReplyID))
		}

		switch reply.Command {
		case CmdData:
			chunks++
			if chunks > s.opts.MaxChunks {
				return fail(fmt.Errorf("%w: more than %d data chunks", ErrUnexpectedReply, s.opts.MaxChunks))
			}
			data = append(data, reply.Payload...)
		case CmdAckOK:
			data = append(data, reply.Payload...)
			return reply, data, nil
		case CmdAckError:
			reason := strings.TrimSpace(string(reply.Payload))
			if reason == "" {
				return fail(ErrRejected)
			}
			return fail(fmt.Errorf("%w: %s", ErrRejected, reason))
		default:
			return fail(fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Command))
		}
	}
}

func (s *Session) closeLocked() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		log.Printf("⚠️ Device %s: close failed: %v", s.addr, err)
	}
	s.conn = nil
}
