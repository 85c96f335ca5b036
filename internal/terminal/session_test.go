package terminal_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckclockgo/internal/terminal"
	"github.com/xelth-com/eckclockgo/internal/terminal/terminaltest"
)

func newServer(t *testing.T) *terminaltest.Server {
	t.Helper()
	srv, err := terminaltest.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestSessionLifecycle(t *testing.T) {
	srv := newServer(t)
	srv.SetUsers(
		terminal.User{DeviceUserID: "1", Name: "Ada", CardNumber: "0042", FingerprintCount: 2},
		terminal.User{DeviceUserID: "2", Name: "Linus", Privilege: 14},
	)
	srv.AddPunchLines(
		"1\t2025-01-06 08:00:00\t0\t1\t0\t0",
		"1\t2025-01-06 17:00:00\t1\t1\t0\t0",
	)

	ctx := context.Background()
	sess := terminal.NewSession(srv.Addr(), terminal.Options{CommandTimeout: time.Second})
	require.NoError(t, sess.Connect(ctx))
	defer sess.Disconnect(ctx)

	sessionID, _ := sess.Counters()
	assert.Equal(t, uint16(0x5A17), sessionID, "session id assigned by the terminal is adopted")

	info, err := sess.GetDeviceInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SIM0000001", info.SerialNumber)
	assert.Equal(t, 2, info.UserCount)
	assert.Equal(t, 2, info.LogCount)

	raw, err := sess.GetAttendanceLogs(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2025-01-06 17:00:00")

	users, err := sess.GetUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ada", users[0].Name)
	assert.Equal(t, 2, users[0].FingerprintCount)
	assert.Equal(t, 14, users[1].Privilege)

	sess.Disconnect(ctx)
	assert.False(t, sess.Connected())
	assert.Equal(t, 1, srv.Exits())

	// second disconnect is a no-op
	sess.Disconnect(ctx)
	assert.Equal(t, 1, srv.Exits())
}

func TestSessionKeepsProposedIDWhenTerminalEchoesZero(t *testing.T) {
	srv := newServer(t)
	srv.SetSessionID(0)

	ctx := context.Background()
	sess := terminal.NewSession(srv.Addr(), terminal.Options{})
	require.NoError(t, sess.Connect(ctx))
	defer sess.Disconnect(ctx)

	sessionID, replyID := sess.Counters()
	assert.NotZero(t, sessionID)
	assert.Equal(t, uint16(1), replyID)

	// the terminal rejects frames with another session id, so this proves tagging
	_, err := sess.GetDeviceInfo(ctx)
	require.NoError(t, err)
}

func TestSessionCountersAreInstanceScoped(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	a := terminal.NewSession(srv.Addr(), terminal.Options{})
	b := terminal.NewSession(srv.Addr(), terminal.Options{})
	require.NoError(t, a.Connect(ctx))
	defer a.Disconnect(ctx)

	for i := 0; i < 3; i++ {
		_, err := a.GetDeviceInfo(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, b.Connect(ctx))
	defer b.Disconnect(ctx)

	_, replyA := a.Counters()
	_, replyB := b.Counters()
	assert.Equal(t, uint16(4), replyA)
	assert.Equal(t, uint16(1), replyB)
}

func TestSessionChunkedReply(t *testing.T) {
	srv := newServer(t)
	srv.SetChunkSize(7)
	for i := 0; i < 50; i++ {
		srv.AddPunchLines("7\t2025-01-06 08:00:00\t0\t2\t0\t0")
	}

	ctx := context.Background()
	sess := terminal.NewSession(srv.Addr(), terminal.Options{})
	require.NoError(t, sess.Connect(ctx))
	defer sess.Disconnect(ctx)

	raw, err := sess.GetAttendanceLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, raw, 50*len("7\t2025-01-06 08:00:00\t0\t2\t0\t0\n"))
}

func TestSessionTooManyChunks(t *testing.T) {
	srv := newServer(t)
	srv.SetChunkSize(1)
	srv.AddPunchLines("1\t2025-01-06 08:00:00\t0")

	ctx := context.Background()
	sess := terminal.NewSession(srv.Addr(), terminal.Options{MaxChunks: 4})
	require.NoError(t, sess.Connect(ctx))
	defer sess.Disconnect(ctx)

	_, err := sess.GetAttendanceLogs(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, terminal.ErrUnexpectedReply)
	assert.False(t, sess.Connected(), "a broken stream closes the transport")
}

func TestSessionConnectRejected(t *testing.T) {
	srv := newServer(t)
	srv.RejectConnect(true)

	sess := terminal.NewSession(srv.Addr(), terminal.Options{})
	err := sess.Connect(context.Background())
	require.Error(t, err)

	var ce *terminal.ConnectivityError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, terminal.ErrRejected)
	assert.False(t, sess.Connected())
}

func TestSessionConnectUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	sess := terminal.NewSession(addr, terminal.Options{DialTimeout: 500 * time.Millisecond})
	err = sess.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, terminal.IsConnectivity(err))
}

func TestSessionCommandTimeout(t *testing.T) {
	srv := newServer(t)
	srv.Stall(terminal.CmdAttLogRRQ)

	ctx := context.Background()
	sess := terminal.NewSession(srv.Addr(), terminal.Options{CommandTimeout: 100 * time.Millisecond})
	require.NoError(t, sess.Connect(ctx))
	defer sess.Disconnect(ctx)

	start := time.Now()
	_, err := sess.GetAttendanceLogs(ctx)
	require.Error(t, err)
	assert.True(t, terminal.IsConnectivity(err))
	assert.Less(t, time.Since(start), 2*time.Second)

	var ne net.Error
	require.True(t, errors.As(err, &ne))
	assert.True(t, ne.Timeout())
}

func TestSessionContextCancel(t *testing.T) {
	srv := newServer(t)
	srv.Stall(terminal.CmdUserTempRRQ)

	sess := terminal.NewSession(srv.Addr(), terminal.Options{CommandTimeout: 5 * time.Second})
	require.NoError(t, sess.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := sess.GetUsers(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// still safe after the transport was dropped
	sess.Disconnect(ctx)
}

func TestSessionDataBeforeConnect(t *testing.T) {
	sess := terminal.NewSession("127.0.0.1:1", terminal.Options{})
	_, err := sess.GetDeviceInfo(context.Background())
	assert.ErrorIs(t, err, terminal.ErrNotConnected)
}

func TestSessionDisconnectWhenExitDropped(t *testing.T) {
	srv := newServer(t)
	srv.DropOnExit(true)

	ctx := context.Background()
	sess := terminal.NewSession(srv.Addr(), terminal.Options{CommandTimeout: 200 * time.Millisecond})
	require.NoError(t, sess.Connect(ctx))

	sess.Disconnect(ctx)
	assert.False(t, sess.Connected())
}

func TestSessionPutUser(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	sess := terminal.NewSession(srv.Addr(), terminal.Options{})
	require.NoError(t, sess.Connect(ctx))
	defer sess.Disconnect(ctx)

	require.NoError(t, sess.PutUser(ctx, terminal.User{DeviceUserID: "9", Name: "Grace", CardNumber: "77"}))
	require.NoError(t, sess.PutUser(ctx, terminal.User{DeviceUserID: "9", Name: "Grace H."}))

	users := srv.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "Grace H.", users[0].Name)

	assert.Error(t, sess.PutUser(ctx, terminal.User{}))
}

// lateDeadlineConn stalls deadlines that are already due, and runs onRead
// after the first read once armed.
type lateDeadlineConn struct {
	net.Conn
	mu      sync.Mutex
	onRead  func()
	readErr error
}

func (c *lateDeadlineConn) arm(fn func()) {
	c.mu.Lock()
	c.onRead = fn
	c.mu.Unlock()
}

func (c *lateDeadlineConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.mu.Lock()
	fn := c.onRead
	c.onRead = nil
	if err != nil && c.readErr == nil {
		c.readErr = err
	}
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return n, err
}

func (c *lateDeadlineConn) SetDeadline(t time.Time) error {
	if !t.After(time.Now()) {
		time.Sleep(100 * time.Millisecond)
	}
	return c.Conn.SetDeadline(t)
}

func TestSessionCancelDuringReplyDoesNotBreakExit(t *testing.T) {
	srv := newServer(t)

	var conn *lateDeadlineConn
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		c, err := (&net.Dialer{}).DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		conn = &lateDeadlineConn{Conn: c}
		return conn, nil
	}

	sess := terminal.NewSession(srv.Addr(), terminal.Options{CommandTimeout: 2 * time.Second, Dial: dial})
	require.NoError(t, sess.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	conn.arm(cancel)
	_, err := sess.GetDeviceInfo(ctx)
	require.NoError(t, err, "reply was already arriving when ctx was cancelled")

	sess.Disconnect(ctx)
	assert.False(t, sess.Connected())
	assert.Equal(t, 1, srv.Exits())

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.NoError(t, conn.readErr, "EXIT reply is read under its own deadline")
}
