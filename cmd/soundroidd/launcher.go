package main

import (
	"errors"
	"fmt"
	"io"

	"soundroidd/internal/config"
	"soundroidd/internal/transport"
	"soundroidd/internal/transport/ipc"
)

const modeCtl = "ctl"

// launch is what the positional arguments ask the daemon to do.
type launch struct {
	conn string
	port string
}

// parseLaunch reads "bt" or "wifi [port]". A wifi launch without a port
// reuses the port remembered in st.
func parseLaunch(args []string, st config.State) (launch, error) {
	if len(args) == 0 {
		return launch{}, errors.New("missing mode: bt, wifi [port] or ctl <command>")
	}

	switch args[0] {
	case config.ConnBT:
		if len(args) > 1 {
			return launch{}, fmt.Errorf("bt takes no arguments, got %q", args[1:])
		}
		return launch{conn: config.ConnBT}, nil

	case config.ConnWiFi:
		if len(args) > 2 {
			return launch{}, fmt.Errorf("wifi takes one port, got %q", args[1:])
		}
		port := st.Port
		if len(args) == 2 {
			port = args[1]
		}
		if port == "" {
			return launch{}, errors.New("wifi: no port given and none remembered")
		}
		if err := transport.CheckUserPort(port); err != nil {
			return launch{}, err
		}
		return launch{conn: config.ConnWiFi, port: port}, nil
	}
	return launch{}, fmt.Errorf("unknown mode %q", args[0])
}

// runCtl sends one command to the running daemon and prints the answer.
func runCtl(socket string, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New("ctl: no command given")
	}

	resp, err := ipc.Call(socket, args...)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, resp)
	return nil
}
