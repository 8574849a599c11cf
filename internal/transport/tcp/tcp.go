// Package tcp is the WiFi transport: a TCP listener serving one phone
// client at a time.
package tcp

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"soundroidd/internal/transport"
)

// A port string must be shorter than maxPortLen.
const maxPortLen = 10

// Transport implements transport.Net over TCP.
type Transport struct {
	mu      sync.Mutex
	port    string
	ln      net.Listener
	conn    net.Conn
	local   string
	peer    string
	lastErr string
	serving bool

	state *transport.RunState
	box   *transport.Mailbox
}

// New validates port and binds it. Both failures wrap transport.ErrPort.
func New(port string) (*Transport, error) {
	t := &Transport{
		state: transport.NewRunState(),
		box:   transport.NewMailbox(),
	}
	if err := t.SetPortNum(port); err != nil {
		return nil, err
	}
	if !t.IsPortAvailable() {
		return nil, fmt.Errorf("%w: bind port %s: %s", transport.ErrPort, port, t.LastErr())
	}
	return t, nil
}

func (t *Transport) Name() string { return "wifi" }

// SetPortNum records port after checking it is a short base-10 number.
func (t *Transport) SetPortNum(port string) error {
	if err := validatePort(port); err != nil {
		log.Printf("[tcp] %v", err)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	log.Printf("[tcp] changing port from %q to %q", t.port, port)
	t.port = port
	return nil
}

func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("%w: the port number string is empty", transport.ErrPort)
	}
	if len(port) >= maxPortLen {
		return fmt.Errorf("%w: the port number %q is longer than %d", transport.ErrPort, port, maxPortLen-1)
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: the port number %q can't be converted to number", transport.ErrPort, port)
		}
	}
	if _, err := strconv.ParseUint(port, 10, 64); err != nil {
		return fmt.Errorf("%w: the port number %q is out of range", transport.ErrPort, port)
	}
	return nil
}

// IsPortAvailable binds the recorded port. On success the listener is kept
// for the next Run and the run state is re-armed.
func (t *Transport) IsPortAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ln != nil {
		t.ln.Close()
		t.ln = nil
	}

	ln, err := net.Listen("tcp", ":"+t.port)
	if err != nil {
		t.lastErr = err.Error()
		log.Printf("[tcp] bind %s: %v", t.port, err)
		return false
	}

	// Port "0" asks the kernel for a free port; report the real one.
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		t.port = strconv.Itoa(addr.Port)
	}
	t.ln = ln
	t.local = transport.LocalIP()
	t.lastErr = ""
	t.state.Arm()
	return true
}

// Run accepts clients one at a time until Stop.
func (t *Transport) Run() {
	t.mu.Lock()
	ln := t.ln
	port := t.port
	t.serving = ln != nil
	t.mu.Unlock()

	if ln == nil {
		log.Printf("[tcp] port %s is not bound, nothing to run", port)
		return
	}
	defer t.closeListener(ln)

	log.Printf("[tcp] listening on :%s", port)
	for t.state.Running() {
		if tl, ok := ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(transport.PollGranularity))
		}

		conn, err := ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			t.setLastErr(err)
			log.Printf("[tcp] accept: %v", err)
			time.Sleep(transport.PollGranularity)
			continue
		}
		t.serve(conn)
	}
	log.Printf("[tcp] stopped listening on :%s", port)
}

func (t *Transport) closeListener(ln net.Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ln.Close()
	if t.ln == ln {
		t.ln = nil
	}
	t.serving = false
}

// serve runs the conversation with one client until it leaves, sends the
// sentinel, or the transport stops.
func (t *Transport) serve(conn net.Conn) {
	peer := hostOf(conn.RemoteAddr())

	t.mu.Lock()
	t.conn = conn
	t.peer = peer
	t.mu.Unlock()

	defer func() {
		conn.Close()
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
	}()

	log.Printf("[tcp] client connected from %s", peer)

	var lb transport.LineBuffer
	buf := make([]byte, 256)
	for t.state.Running() {
		_ = conn.SetReadDeadline(time.Now().Add(transport.PollGranularity))
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range lb.Feed(buf[:n]) {
				if line == transport.Sentinel {
					log.Printf("[tcp] %s closed the session", peer)
					return
				}
				if !t.converse(conn, line) {
					return
				}
			}
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Printf("[tcp] %s shut down", peer)
			} else {
				t.setLastErr(err)
				log.Printf("[tcp] receive from %s: %v", peer, err)
			}
			return
		}
	}
}

// converse posts one request and writes the dispatcher's answer back.
// It reports whether the session should continue.
func (t *Transport) converse(conn net.Conn, line string) bool {
	log.Printf("[tcp] received %q", line)
	seq := t.box.Post(line)

	resp, ok := t.box.Await(seq, t.state.Done(), transport.ReplyTimeout)
	if !ok {
		if t.state.Running() {
			log.Printf("[tcp] no answer for %q", line)
		}
		return t.state.Running()
	}

	_ = conn.SetWriteDeadline(time.Now().Add(transport.ReplyTimeout))
	if _, err := io.WriteString(conn, resp); err != nil {
		t.setLastErr(err)
		log.Printf("[tcp] send %q: %v", resp, err)
		return false
	}
	return true
}

// Stop flags the run state and expires pending I/O so Accept and Read
// return at once. A listener no Run has taken is closed here so the port
// is released.
func (t *Transport) Stop() {
	t.state.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.serving {
		if t.ln != nil {
			t.ln.Close()
			t.ln = nil
		}
		return
	}
	if tl, ok := t.ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now())
	}
	if t.conn != nil {
		_ = t.conn.SetDeadline(time.Now())
	}
}

func (t *Transport) Send(text string) {
	if text == "" {
		log.Printf("[tcp] WARNING: can't send an empty string")
		return
	}
	t.box.Reply(text + "\n")
}

func (t *Transport) Receive() string {
	return t.box.Take()
}

func (t *Transport) LocalAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.local == "" {
		t.local = transport.LocalIP()
	}
	return t.local
}

func (t *Transport) ConnectedAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer
}

func (t *Transport) UsedPort() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

func (t *Transport) LastErr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Transport) setLastErr(err error) {
	t.mu.Lock()
	t.lastErr = err.Error()
	t.mu.Unlock()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func hostOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		if v4 := tcp.IP.To4(); v4 != nil {
			return v4.String()
		}
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
