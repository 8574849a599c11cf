// Package ipc is the local panel transport: a unix socket taking one
// request line per connection and answering with one response line.
package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"soundroidd/internal/transport"
)

// Transport implements transport.Transport over a unix socket.
type Transport struct {
	mu      sync.Mutex
	path    string
	ln      *net.UnixListener
	conn    net.Conn
	started bool

	state *transport.RunState
	box   *transport.Mailbox
}

// New opens the socket at path. A stale socket file is removed first; a
// socket with a live daemon behind it is refused. Failures wrap
// transport.ErrLifecycle.
func New(path string) (*Transport, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create socket dir: %v", transport.ErrLifecycle, err)
	}

	if c, err := net.DialTimeout("unix", path, time.Second); err == nil {
		c.Close()
		return nil, fmt.Errorf("%w: %s is in use by another daemon", transport.ErrLifecycle, path)
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", transport.ErrLifecycle, path, err)
	}
	if err := os.Chmod(path, 0o660); err != nil {
		log.Printf("[ipc] chmod %s: %v", path, err)
	}

	return &Transport{
		path:  path,
		ln:    ln.(*net.UnixListener),
		state: transport.NewRunState(),
		box:   transport.NewMailbox(),
	}, nil
}

func (t *Transport) Name() string { return "ipc" }

// Path is the socket file the transport listens on.
func (t *Transport) Path() string { return t.path }

// Run serves panel connections one at a time until Stop. The socket file
// is removed when it returns.
func (t *Transport) Run() {
	t.mu.Lock()
	ln := t.ln
	t.started = true
	t.mu.Unlock()

	defer ln.Close()

	log.Printf("[ipc] listening on %s", t.path)
	for t.state.Running() {
		_ = ln.SetDeadline(time.Now().Add(transport.PollGranularity))
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			log.Printf("[ipc] accept: %v", err)
			continue
		}
		t.handle(conn)
	}
	log.Printf("[ipc] stopped listening on %s", t.path)
}

// handle reads one request, waits for the dispatcher's answer and writes it
// back before closing the connection.
func (t *Transport) handle(conn net.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	defer func() {
		conn.Close()
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(transport.ReplyTimeout))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil && t.state.Running() {
			log.Printf("[ipc] read: %v", err)
		}
		return
	}

	line := transport.TrimLine(scanner.Text())
	if line == "" || line == transport.Sentinel {
		return
	}

	log.Printf("[ipc] received %q", line)
	seq := t.box.Post(line)
	resp, ok := t.box.Await(seq, t.state.Done(), transport.ReplyTimeout)
	if !ok {
		if t.state.Running() {
			log.Printf("[ipc] no answer for %q", line)
		}
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(transport.ReplyTimeout))
	if _, err := io.WriteString(conn, resp); err != nil {
		log.Printf("[ipc] send %q: %v", resp, err)
	}
}

// Stop flags the run state and expires pending I/O. If Run never started
// the listener is closed here so the socket file does not linger.
func (t *Transport) Stop() {
	t.state.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		t.ln.Close()
		return
	}
	_ = t.ln.SetDeadline(time.Now())
	if t.conn != nil {
		_ = t.conn.SetDeadline(time.Now())
	}
}

func (t *Transport) Send(text string) {
	if text == "" {
		log.Printf("[ipc] WARNING: can't send an empty string")
		return
	}
	t.box.Reply(text + "\n")
}

func (t *Transport) Receive() string {
	return t.box.Take()
}
