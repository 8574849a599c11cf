// Package bluetooth is the Bluetooth transport: an RFCOMM listener on a
// fixed channel serving one phone at a time. Adapter and device names come
// from bluetoothd over D-Bus when it is reachable.
package bluetooth

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"soundroidd/internal/transport"
)

// DefaultChannel is the RFCOMM channel the phone app connects to.
const DefaultChannel = 11

// readBufLen is the most a single phone write is expected to carry.
const readBufLen = 256

var errPeerClosed = errors.New("peer closed the connection")

type listener interface {
	// accept waits up to timeout for a client. A nil stream with a nil
	// error means no client arrived.
	accept(timeout time.Duration) (stream, string, error)
	close() error
}

type stream interface {
	// read waits up to timeout for data; (0, nil) means none arrived.
	read(p []byte, timeout time.Duration) (int, error)
	write(p []byte) (int, error)
	close() error
}

// Options configures New.
type Options struct {
	Channel int
	// Adapter is the HCI device name, "hci0" when empty.
	Adapter string
}

// Transport implements transport.Net over RFCOMM.
type Transport struct {
	mu      sync.Mutex
	channel int
	ln      listener
	names   Names
	local   string
	peer    string
	lastErr string
	started bool
	closed  sync.Once

	state *transport.RunState
	box   *transport.Mailbox
}

// dialNames is replaced in tests.
var dialNames = func(adapter string) (Names, error) {
	b, err := newBluez(adapter)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// New binds the RFCOMM channel and makes the adapter discoverable. A socket
// failure wraps transport.ErrLifecycle. Missing bluetoothd only costs the
// friendly names.
func New(opts Options) (*Transport, error) {
	if opts.Channel == 0 {
		opts.Channel = DefaultChannel
	}
	if !validChannel(opts.Channel) {
		return nil, fmt.Errorf("%w: RFCOMM channel %d is outside 1..30", transport.ErrPort, opts.Channel)
	}

	ln, err := listenRFCOMM(uint8(opts.Channel))
	if err != nil {
		return nil, fmt.Errorf("%w: rfcomm channel %d: %v", transport.ErrLifecycle, opts.Channel, err)
	}

	names, err := dialNames(opts.Adapter)
	if err != nil {
		log.Printf("[bt] adapter names unavailable: %v", err)
		names = nil
	}
	return newTransport(ln, opts.Channel, names), nil
}

func newTransport(ln listener, channel int, names Names) *Transport {
	t := &Transport{
		channel: channel,
		ln:      ln,
		names:   names,
		state:   transport.NewRunState(),
		box:     transport.NewMailbox(),
	}
	if names != nil {
		if err := names.SetDiscoverable(true); err != nil {
			log.Printf("[bt] make adapter discoverable: %v", err)
		}
		if name, err := names.AdapterName(); err != nil {
			log.Printf("[bt] can't get the local adapter's name: %v", err)
		} else {
			t.local = name
		}
	}
	return t
}

func (t *Transport) Name() string { return "bt" }

// Run accepts phones one at a time until Stop.
func (t *Transport) Run() {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	defer t.release()

	log.Printf("[bt] listening on RFCOMM channel %d", t.channel)
	for t.state.Running() {
		s, mac, err := t.ln.accept(transport.PollGranularity)
		if err != nil {
			t.setLastErr(err)
			log.Printf("[bt] accept: %v", err)
			time.Sleep(transport.PollGranularity)
			continue
		}
		if s == nil {
			continue
		}
		t.serve(s, mac)
	}
	log.Printf("[bt] stopped listening on RFCOMM channel %d", t.channel)
}

func (t *Transport) release() {
	t.closed.Do(func() {
		t.ln.close()
		if t.names != nil {
			t.names.Close()
		}
	})
}

// serve talks to one phone until it leaves, sends the sentinel, or the
// transport stops. The phone writes one undelimited command per message,
// so whatever a read leaves unterminated is taken as a full request.
func (t *Transport) serve(s stream, mac string) {
	defer s.close()

	peer := mac
	if t.names != nil && mac != "" {
		if name, err := t.names.DeviceName(mac); err != nil {
			log.Printf("[bt] can't get the remote adapter's name: %v", err)
		} else {
			peer = name
		}
	}
	t.mu.Lock()
	t.peer = peer
	t.mu.Unlock()

	log.Printf("[bt] accepted connection from %s (%s)", peer, mac)

	var lb transport.LineBuffer
	buf := make([]byte, readBufLen)
	for t.state.Running() {
		n, err := s.read(buf, transport.PollGranularity)
		if n > 0 {
			lines := lb.Feed(buf[:n])
			if rest := lb.Flush(); rest != "" {
				lines = append(lines, rest)
			}
			for _, line := range lines {
				if line == transport.Sentinel {
					log.Printf("[bt] %s closed the session", peer)
					return
				}
				if !t.converse(s, line) {
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, errPeerClosed) {
				log.Printf("[bt] %s shut down", peer)
			} else {
				t.setLastErr(err)
				log.Printf("[bt] receive from %s: %v", peer, err)
			}
			return
		}
	}
}

func (t *Transport) converse(s stream, line string) bool {
	log.Printf("[bt] received %q", line)
	seq := t.box.Post(line)

	resp, ok := t.box.Await(seq, t.state.Done(), transport.ReplyTimeout)
	if !ok {
		if t.state.Running() {
			log.Printf("[bt] no answer for %q", line)
		}
		return t.state.Running()
	}

	if _, err := s.write([]byte(resp)); err != nil {
		t.setLastErr(err)
		log.Printf("[bt] send %q: %v", resp, err)
		return false
	}
	return true
}

// Stop flags the run state; blocked polls notice within PollGranularity.
func (t *Transport) Stop() {
	t.state.Stop()

	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		t.release()
	}
}

func (t *Transport) Send(text string) {
	if text == "" {
		log.Printf("[bt] WARNING: can't send an empty string")
		return
	}
	t.box.Reply(text + "\n")
}

func (t *Transport) Receive() string {
	return t.box.Take()
}

// LocalAddr is the local adapter's name, "" when bluetoothd did not say.
func (t *Transport) LocalAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local
}

// ConnectedAddr is the last phone's name, or its MAC when the name is
// unknown.
func (t *Transport) ConnectedAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer
}

// UsedPort is empty: RFCOMM has a channel, not a port.
func (t *Transport) UsedPort() string { return "" }

func (t *Transport) SetPortNum(port string) error {
	return fmt.Errorf("%w: bluetooth listens on fixed channel %d", transport.ErrPort, t.channel)
}

func (t *Transport) IsPortAvailable() bool { return false }

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
