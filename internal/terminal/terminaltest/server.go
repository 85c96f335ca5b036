// Package terminaltest provides an in-process terminal that speaks the
// device protocol, for tests and local simulation.
package terminaltest

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/xelth-com/eckclockgo/internal/terminal"
)

// Server is a fake terminal listening on TCP
type Server struct {
	ln net.Listener

	mu            sync.Mutex
	info          terminal.DeviceInfo
	users         []terminal.User
	punches       []string
	sessionID     uint16
	chunkSize     int
	rejectConnect bool
	stall         map[terminal.Command]bool
	dropExit      bool

	connects int
	exits    int
	conns    map[net.Conn]struct{}

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewServer listens on addr ("127.0.0.1:0" for an ephemeral port) and
// starts serving in the background
func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:        ln,
		sessionID: 0x5A17,
		chunkSize: 1024,
		stall:     make(map[terminal.Command]bool),
		conns:     make(map[net.Conn]struct{}),
		closed:    make(chan struct{}),
		info: terminal.DeviceInfo{
			SerialNumber: "SIM0000001",
			Firmware:     "Ver 6.60 Sim",
			Platform:     "ZMM220_TFT",
			DeviceName:   "terminal-sim",
		},
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listening address
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener and drops open connections
func (s *Server) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	err := s.ln.Close()

	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// SetInfo replaces the metadata reported by GET_DEVICE_INFO
func (s *Server) SetInfo(info terminal.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
}

// SetUsers replaces the enrolled-user directory
func (s *Server) SetUsers(users ...terminal.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append([]terminal.User(nil), users...)
}

// Users returns a copy of the enrolled-user directory
func (s *Server) Users() []terminal.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]terminal.User(nil), s.users...)
}

// AddPunchLines appends raw attendance log lines
func (s *Server) AddPunchLines(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.punches = append(s.punches, lines...)
}

// SetSessionID sets the id returned in the CONNECT reply (0 keeps the client's)
func (s *Server) SetSessionID(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// SetChunkSize bounds the payload of each DATA frame
func (s *Server) SetChunkSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > terminal.MaxPayload {
		n = terminal.MaxPayload
	}
	if n > 0 {
		s.chunkSize = n
	}
}

// RejectConnect makes CONNECT answer ACK_ERROR
func (s *Server) RejectConnect(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectConnect = reject
}

// Stall makes the server read cmd and never answer it
func (s *Server) Stall(cmd terminal.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall[cmd] = true
}

// DropOnExit makes the server close the connection instead of acking EXIT
func (s *Server) DropOnExit(drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropExit = drop
}

// Connects returns how many CONNECT handshakes were accepted
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Exits returns how many EXIT commands were received
func (s *Server) Exits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exits
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			log.Printf("terminal-sim: accept: %v", err)
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	var session uint16
	for {
		req, err := terminal.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("terminal-sim: read: %v", err)
			}
			return
		}

		s.mu.Lock()
		stalled := s.stall[req.Command]
		s.mu.Unlock()
		if stalled {
			continue
		}

		if req.Command != terminal.CmdConnect && req.SessionID != session {
			s.reply(conn, req, terminal.CmdAckError, []byte("bad session"))
			continue
		}

		switch req.Command {
		case terminal.CmdConnect:
			s.mu.Lock()
			reject := s.rejectConnect
			assigned := s.sessionID
			if !reject {
				s.connects++
			}
			s.mu.Unlock()

			if reject {
				s.reply(conn, req, terminal.CmdAckError, []byte("connection refused"))
				continue
			}
			if assigned == 0 {
				assigned = req.SessionID
			}
			session = assigned
			_ = terminal.WriteFrame(conn, terminal.Frame{Command: terminal.CmdAckOK, SessionID: session, ReplyID: req.ReplyID})

		case terminal.CmdExit:
			s.mu.Lock()
			s.exits++
			drop := s.dropExit
			s.mu.Unlock()
			if !drop {
				s.reply(conn, req, terminal.CmdAckOK, nil)
			}
			return

		case terminal.CmdGetDeviceInfo:
			s.mu.Lock()
			info := s.info
			info.UserCount = len(s.users)
			info.LogCount = len(s.punches)
			s.mu.Unlock()
			s.reply(conn, req, terminal.CmdAckOK, info.Encode())

		case terminal.CmdAttLogRRQ:
			s.mu.Lock()
			var buf bytes.Buffer
			for _, line := range s.punches {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			s.mu.Unlock()
			s.sendChunked(conn, req, buf.Bytes())

		case terminal.CmdUserTempRRQ:
			s.mu.Lock()
			payload := terminal.EncodeUsers(s.users)
			s.mu.Unlock()
			s.sendChunked(conn, req, payload)

		case terminal.CmdUserWRQ:
			users, skipped := terminal.ParseUsers(req.Payload)
			if len(users) != 1 || skipped > 0 {
				s.reply(conn, req, terminal.CmdAckError, []byte("expected one user"))
				continue
			}
			s.putUser(users[0])
			s.reply(conn, req, terminal.CmdAckOK, nil)

		default:
			s.reply(conn, req, terminal.CmdAckError, []byte("unsupported command "+strings.ToLower(req.Command.String())))
		}
	}
}

func (s *Server) putUser(u terminal.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].DeviceUserID == u.DeviceUserID {
			s.users[i] = u
			return
		}
	}
	s.users = append(s.users, u)
}

func (s *Server) sendChunked(conn net.Conn, req terminal.Frame, payload []byte) {
	s.mu.Lock()
	size := s.chunkSize
	s.mu.Unlock()

	for len(payload) > 0 {
		n := size
		if n > len(payload) {
			n = len(payload)
		}
		if err := terminal.WriteFrame(conn, terminal.Frame{
			Command:   terminal.CmdData,
			SessionID: req.SessionID,
			ReplyID:   req.ReplyID,
			Payload:   payload[:n],
		}); err != nil {
			return
		}
		payload = payload[n:]
	}
	s.reply(conn, req, terminal.CmdAckOK, nil)
}

func (s *Server) reply(conn net.Conn, req terminal.Frame, cmd terminal.Command, payload []byte) {
	_ = terminal.WriteFrame(conn, terminal.Frame{
		Command:   cmd,
		SessionID: req.SessionID,
		ReplyID:   req.ReplyID,
		Payload:   payload,
	})
}
