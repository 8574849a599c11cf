// Package transport defines the text channels the dispatcher polls and the
// per-transport state shared between a transport's I/O goroutine and the
// dispatcher loop.
package transport

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// PollGranularity bounds how long a blocked accept/read may go without
	// re-checking the run state.
	PollGranularity = 500 * time.Millisecond

	// ReplyTimeout is how long an I/O goroutine waits for the dispatcher to
	// answer a request before giving up on that cycle.
	ReplyTimeout = 5 * time.Second

	// Sentinel is the payload a peer sends to close its session.
	Sentinel = "end"

	// Unknown is reported when an address cannot be resolved.
	Unknown = "UNKNOWN"
)

// Ports a phone client may be told to use.
const (
	MinUserPort = 1024
	MaxUserPort = 65535
)

var (
	// ErrPort marks unparsable, out-of-range or unbindable ports.
	ErrPort = errors.New("port error")

	// ErrLifecycle marks a transport that could not acquire its native
	// resource (socket, mailbox) at construction time.
	ErrLifecycle = errors.New("transport lifecycle error")
)

// Transport is a bidirectional text channel polled by the dispatcher.
type Transport interface {
	// Name is a short label used in log lines.
	Name() string

	// Send delivers text, newline-terminated, to the peer whose request is
	// pending on this transport. Empty text is logged and dropped.
	Send(text string)

	// Receive returns the pending request, or "" when there is none.
	// It never blocks.
	Receive() string

	// Run executes the accept/listen loop on the caller's goroutine and
	// returns once Stop has been observed.
	Run()

	// Stop asks Run to return. It is idempotent.
	Stop()
}

// Net is the network side of the daemon: the WiFi or the Bluetooth
// transport.
type Net interface {
	Transport

	LocalAddr() string
	ConnectedAddr() string
	UsedPort() string

	// SetPortNum validates and records port. The error wraps ErrPort.
	SetPortNum(port string) error

	// IsPortAvailable binds the recorded port and keeps the binding for the
	// next Run.
	IsPortAvailable() bool

	LastErr() string
}

// CheckUserPort reports whether port is a number in
// MinUserPort..MaxUserPort. The error wraps ErrPort.
func CheckUserPort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", ErrPort, port)
	}
	if n < MinUserPort || n > MaxUserPort {
		return fmt.Errorf("%w: %d is outside %d..%d", ErrPort, n, MinUserPort, MaxUserPort)
	}
	return nil
}
