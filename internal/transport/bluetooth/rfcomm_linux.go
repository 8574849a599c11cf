//go:build linux

package bluetooth

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// rfcommListener is a non-blocking RFCOMM server socket.
type rfcommListener struct {
	fd int
}

// listenRFCOMM binds channel on any local adapter and listens with a
// backlog of one.
func listenRFCOMM(channel uint8) (listener, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{Channel: channel}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &rfcommListener{fd: fd}, nil
}

func (l *rfcommListener) accept(timeout time.Duration) (stream, string, error) {
	ok, err := waitReadable(l.fd, timeout)
	if err != nil || !ok {
		return nil, "", err
	}

	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
	if err != nil {
		if wouldBlock(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	mac := ""
	if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
		mac = formatMAC(rc.Addr)
	}
	return &rfcommStream{fd: nfd}, mac, nil
}

func (l *rfcommListener) close() error { return unix.Close(l.fd) }

// rfcommStream is one accepted RFCOMM connection.
type rfcommStream struct {
	fd int
}

func (s *rfcommStream) read(p []byte, timeout time.Duration) (int, error) {
	ok, err := waitReadable(s.fd, timeout)
	if err != nil || !ok {
		return 0, err
	}
	n, err := unix.Read(s.fd, p)
	if err != nil {
		if wouldBlock(err) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, errPeerClosed
	}
	return n, nil
}

func (s *rfcommStream) write(p []byte) (int, error) { return unix.Write(s.fd, p) }
func (s *rfcommStream) close() error                { return unix.Close(s.fd) }

// waitReadable polls fd for input for at most timeout. A false result
// with a nil error means the timeout elapsed.
func waitReadable(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}
