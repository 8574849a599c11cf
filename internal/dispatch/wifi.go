package dispatch

import (
	"log"

	"soundroidd/internal/transport"
	"soundroidd/internal/transport/tcp"
)

// WiFi is the dispatcher serving phones over TCP. It adds get_port and
// chg_port and can move the listener to another port while running.
type WiFi struct {
	*Dispatcher
	net transport.Net
}

// NewWiFi binds port and wires the WiFi command table over it and locals.
// A bad or busy port fails with an error wrapping transport.ErrPort, after
// the locals have been stopped.
func NewWiFi(port string, g Gateway, locals []transport.Transport, opts ...Option) (*WiFi, error) {
	net, err := tcp.New(port)
	if err != nil {
		for _, t := range locals {
			t.Stop()
		}
		return nil, err
	}
	return newWiFi(net, g, locals, opts...), nil
}

func newWiFi(net transport.Net, g Gateway, locals []transport.Transport, opts ...Option) *WiFi {
	w := &WiFi{
		Dispatcher: newDispatcher("wifi", net, g, locals, opts),
		net:        net,
	}
	w.commands.add(getPortCommand(net))
	w.commands.add(chgPortCommand(w))
	return w
}

// Net is the network transport.
func (w *WiFi) Net() transport.Net { return w.net }

// RestartNet moves the network transport to port. It stops the transport,
// waits for it, binds port and starts it again. When port cannot be bound
// the previous port is bound instead.
//
// The result reports whether port itself was bound: false covers both a
// successful rollback and a transport left unbound because the rollback
// failed too.
func (w *WiFi) RestartNet(port string) bool {
	if !w.running(w.net) {
		log.Printf("[dispatch] WARNING: RestartNet: the network transport is not running")
		return false
	}
	if port == "" {
		log.Printf("[dispatch] WARNING: RestartNet: the given port number string is empty")
		return false
	}

	prev := w.net.UsedPort()
	log.Printf("[dispatch] restarting the network transport: %s -> %s", prev, port)

	w.net.Stop()
	w.join(w.net)

	changed := w.chgNetPort(port, prev)
	w.spawn(w.net)
	return changed
}

func (w *WiFi) chgNetPort(port, prev string) bool {
	if err := w.net.SetPortNum(port); err != nil {
		log.Printf("[dispatch] ERROR: can't use port %q: %v", port, err)
	} else if w.net.IsPortAvailable() {
		return true
	} else {
		log.Printf("[dispatch] ERROR: port %s is not available: %s", port, w.net.LastErr())
	}

	log.Printf("[dispatch] rolling back to port %s", prev)
	if err := w.net.SetPortNum(prev); err != nil {
		log.Printf("[dispatch] ERROR: rollback to %q: %v; the network transport is unbound", prev, err)
		return false
	}
	if !w.net.IsPortAvailable() {
		log.Printf("[dispatch] ERROR: rollback to %s failed: %s; the network transport is unbound", prev, w.net.LastErr())
	}
	return false
}
