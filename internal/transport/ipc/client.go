package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"soundroidd/internal/transport"
)

// ErrRejected is returned by Call when the daemon answers ERR.
var ErrRejected = errors.New("daemon answered ERR")

// dialTimeout bounds connecting to the daemon socket.
const dialTimeout = 3 * time.Second

// Call sends one command line to the daemon at path and returns its
// one-line answer. An ERR answer is returned together with ErrRejected.
func Call(path string, args ...string) (string, error) {
	line := strings.Join(args, " ")
	if strings.TrimSpace(line) == "" {
		return "", fmt.Errorf("empty command")
	}

	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return "", fmt.Errorf("connect to daemon: %w (is `soundroidd` running?)", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(dialTimeout + transport.ReplyTimeout))

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", fmt.Errorf("read response: daemon closed the connection")
	}

	resp := transport.TrimLine(scanner.Text())
	if resp == "ERR" {
		return resp, fmt.Errorf("%s: %w", line, ErrRejected)
	}
	return resp, nil
}
