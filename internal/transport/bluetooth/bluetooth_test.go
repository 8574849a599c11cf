package bluetooth

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"soundroidd/internal/transport"
)

// pipeStream adapts one end of net.Pipe to the stream interface.
type pipeStream struct {
	c net.Conn
}

func (p *pipeStream) read(b []byte, timeout time.Duration) (int, error) {
	_ = p.c.SetReadDeadline(time.Now().Add(timeout))
	n, err := p.c.Read(b)
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
		return n, errPeerClosed
	}
	return n, err
}

func (p *pipeStream) write(b []byte) (int, error) { return p.c.Write(b) }
func (p *pipeStream) close() error                { return p.c.Close() }

type fakeListener struct {
	conns  chan net.Conn
	mu     sync.Mutex
	closed int
}

func newFakeListener() *fakeListener {
	return &fakeListener{conns: make(chan net.Conn, 1)}
}

func (l *fakeListener) accept(timeout time.Duration) (stream, string, error) {
	select {
	case c := <-l.conns:
		return &pipeStream{c: c}, "11:22:33:AA:BB:CC", nil
	case <-time.After(timeout):
		return nil, "", nil
	}
}

func (l *fakeListener) close() error {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
	return nil
}

// dial hands the transport a new phone connection and returns the
// phone's end.
func (l *fakeListener) dial() net.Conn {
	server, phone := net.Pipe()
	l.conns <- server
	return phone
}

type fakeNames struct {
	adapter      string
	devices      map[string]string
	discoverable bool
	closed       bool
}

func (f *fakeNames) AdapterName() (string, error) {
	if f.adapter == "" {
		return "", errors.New("no adapter")
	}
	return f.adapter, nil
}

func (f *fakeNames) DeviceName(mac string) (string, error) {
	if n, ok := f.devices[mac]; ok {
		return n, nil
	}
	return "", errors.New("unknown device")
}

func (f *fakeNames) SetDiscoverable(on bool) error {
	f.discoverable = on
	return nil
}

func (f *fakeNames) Close() { f.closed = true }

func startTransport(t *testing.T, names Names) (*Transport, *fakeListener, <-chan struct{}) {
	t.Helper()

	ln := newFakeListener()
	tr := newTransport(ln, DefaultChannel, names)
	done := make(chan struct{})
	go func() {
		tr.Run()
		close(done)
	}()
	t.Cleanup(func() {
		tr.Stop()
		<-done
	})
	return tr, ln, done
}

func answer(t *testing.T, tr *Transport, reply string) string {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if req := tr.Receive(); req != "" {
			tr.Send(reply)
			return req
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no request arrived")
	return ""
}

func TestUndelimitedRequest(t *testing.T) {
	names := &fakeNames{adapter: "desk", devices: map[string]string{"11:22:33:AA:BB:CC": "phone"}}
	tr, ln, _ := startTransport(t, names)
	phone := ln.dial()
	defer phone.Close()

	go phone.Write([]byte("get_vol"))
	if req := answer(t, tr, "30"); req != "get_vol" {
		t.Errorf("request = %q, want get_vol", req)
	}

	_ = phone.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(phone).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "30\n" {
		t.Errorf("response = %q, want %q", line, "30\n")
	}

	if got := tr.LocalAddr(); got != "desk" {
		t.Errorf("LocalAddr() = %q, want desk", got)
	}
	if got := tr.ConnectedAddr(); got != "phone" {
		t.Errorf("ConnectedAddr() = %q, want phone", got)
	}
	if !names.discoverable {
		t.Error("adapter was not made discoverable")
	}
}

func TestConnectedAddrFallsBackToMAC(t *testing.T) {
	tr, ln, _ := startTransport(t, nil)
	phone := ln.dial()
	defer phone.Close()

	go phone.Write([]byte("hello"))
	answer(t, tr, "OK")

	if got := tr.ConnectedAddr(); got != "11:22:33:AA:BB:CC" {
		t.Errorf("ConnectedAddr() = %q, want the MAC", got)
	}
	if got := tr.LocalAddr(); got != "" {
		t.Errorf("LocalAddr() = %q without bluetoothd, want empty", got)
	}
}

func TestSentinelEndsSession(t *testing.T) {
	tr, ln, _ := startTransport(t, nil)
	phone := ln.dial()
	defer phone.Close()

	go phone.Write([]byte("end"))

	_ = phone.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := phone.Read(make([]byte, 1)); err == nil {
		t.Error("session still open after sentinel")
	}
	if req := tr.Receive(); req != "" {
		t.Errorf("sentinel leaked as request %q", req)
	}
}

func TestStopReleasesResources(t *testing.T) {
	names := &fakeNames{adapter: "desk"}
	tr, ln, done := startTransport(t, names)

	tr.Stop()
	select {
	case <-done:
	case <-time.After(2 * transport.PollGranularity):
		t.Fatal("Run did not return after Stop")
	}
	if ln.closed != 1 {
		t.Errorf("listener closed %d times, want 1", ln.closed)
	}
	if !names.closed {
		t.Error("D-Bus connection left open")
	}
}

func TestStopBeforeRun(t *testing.T) {
	ln := newFakeListener()
	tr := newTransport(ln, DefaultChannel, nil)

	tr.Stop()
	tr.Run()
	if ln.closed != 1 {
		t.Errorf("listener closed %d times, want 1", ln.closed)
	}
}

func TestPortOperationsAreRefused(t *testing.T) {
	tr := newTransport(newFakeListener(), DefaultChannel, nil)

	if err := tr.SetPortNum("5000"); !errors.Is(err, transport.ErrPort) {
		t.Errorf("SetPortNum err = %v, want ErrPort", err)
	}
	if tr.IsPortAvailable() {
		t.Error("IsPortAvailable() = true")
	}
	if got := tr.UsedPort(); got != "" {
		t.Errorf("UsedPort() = %q, want empty", got)
	}
}

func TestNewRejectsBadChannel(t *testing.T) {
	for _, ch := range []int{-1, 31, 200} {
		if _, err := New(Options{Channel: ch}); !errors.Is(err, transport.ErrPort) {
			t.Errorf("New(channel %d) err = %v, want ErrPort", ch, err)
		}
	}
}

func TestFormatMAC(t *testing.T) {
	got := formatMAC([6]byte{0x11, 0x22, 0x33, 0xaa, 0xbb, 0xcc})
	if got != "CC:BB:AA:33:22:11" {
		t.Errorf("formatMAC() = %q", got)
	}
}

func TestDeviceObjectPath(t *testing.T) {
	got := deviceObjectPath("/org/bluez/hci0", "aa:bb:cc:dd:ee:ff")
	if got != "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF" {
		t.Errorf("deviceObjectPath() = %q", got)
	}
}
