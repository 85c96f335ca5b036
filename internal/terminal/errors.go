package terminal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by data operations before Connect succeeds
	ErrNotConnected = errors.New("session not connected")

	// ErrRejected means the terminal answered ACK_ERROR
	ErrRejected = errors.New("command rejected by terminal")

	// ErrUnexpectedReply means the terminal answered out of protocol
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// ConnectivityError reports that a terminal could not be reached or did not
// answer within the command timeout. It aborts the run that hit it.
type ConnectivityError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("device %s unreachable during %s: %v", e.Addr, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err carries a ConnectivityError
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
