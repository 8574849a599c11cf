package dispatch

import (
	"log"

	"soundroidd/internal/transport"
	"soundroidd/internal/transport/bluetooth"
)

// Bluetooth is the dispatcher serving phones over RFCOMM. It has no port
// commands: get_port and chg_port are unknown here.
type Bluetooth struct {
	*Dispatcher
	net transport.Net
}

// NewBluetooth opens the RFCOMM listener and wires the command table over
// it and locals. On failure the locals are stopped.
func NewBluetooth(bt bluetooth.Options, g Gateway, locals []transport.Transport, opts ...Option) (*Bluetooth, error) {
	net, err := bluetooth.New(bt)
	if err != nil {
		for _, t := range locals {
			t.Stop()
		}
		return nil, err
	}
	return newBluetooth(net, g, locals, opts...), nil
}

func newBluetooth(net transport.Net, g Gateway, locals []transport.Transport, opts ...Option) *Bluetooth {
	return &Bluetooth{
		Dispatcher: newDispatcher("bt", net, g, locals, opts),
		net:        net,
	}
}

func (b *Bluetooth) Net() transport.Net { return b.net }

// RestartNet is not supported: RFCOMM listens on a fixed channel.
func (b *Bluetooth) RestartNet(port string) bool {
	log.Printf("[dispatch] WARNING: RestartNet(%q): bluetooth has no port to change", port)
	return false
}
