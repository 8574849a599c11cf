package dispatch

import (
	"log"
	"strconv"
	"strings"

	"soundroidd/internal/transport"
)

// Command names.
const (
	CmdHello       = "hello"
	CmdLocalIP     = "get_local_ip"
	CmdConnectedIP = "get_connected_ip"
	CmdIsMuted     = "is_muted"
	CmdMute        = "mute"
	CmdUnmute      = "unmute"
	CmdChgVol      = "chg_vol"
	CmdGetVol      = "get_vol"
	CmdQuit        = "quit"
	CmdGetPort     = "get_port"
	CmdChgPort     = "chg_port"
)

// Responses.
const (
	OK    = "OK"
	ERR   = "ERR"
	True  = "true"
	False = "false"
)

// Gateway is the sound side the volume commands act on.
type Gateway interface {
	Mute() error
	Unmute() error
	IsMuted() (bool, error)
	Volume() (int, error)
	ChangeVolume(delta int) (int, error)
}

// Command is one protocol verb. NoArgs serves "name" and WithArgs serves
// "name arg...". A nil form answers ERR.
type Command struct {
	Name     string
	NoArgs   func() string
	WithArgs func(args []string) string
}

// Exec runs the form matching args.
func (c Command) Exec(args []string) string {
	if len(args) == 0 {
		if c.NoArgs == nil {
			log.Printf("[dispatch] ERROR: %s needs arguments", c.Name)
			return ERR
		}
		return c.NoArgs()
	}
	if c.WithArgs == nil {
		log.Printf("[dispatch] ERROR: %s takes no arguments, got %q", c.Name, args)
		return ERR
	}
	return c.WithArgs(args)
}

// Table maps command names to commands. It is filled before the
// dispatcher starts and only read afterwards.
type Table map[string]Command

func (t Table) add(c Command) { t[c.Name] = c }

// Parse splits a request line on whitespace into the command name and its
// arguments.
func Parse(line string) (string, []string) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return "", nil
	}
	return words[0], words[1:]
}

func helloCommand() Command {
	return Command{
		Name:   CmdHello,
		NoArgs: func() string { return OK },
	}
}

func localIPCommand(n transport.Net) Command {
	return Command{
		Name:   CmdLocalIP,
		NoArgs: func() string { return orUnknown(n.LocalAddr()) },
	}
}

func connectedIPCommand(n transport.Net) Command {
	return Command{
		Name:   CmdConnectedIP,
		NoArgs: func() string { return orUnknown(n.ConnectedAddr()) },
	}
}

func orUnknown(addr string) string {
	if addr == "" {
		return transport.Unknown
	}
	return addr
}

func isMutedCommand(g Gateway) Command {
	return Command{
		Name: CmdIsMuted,
		NoArgs: func() string {
			muted, err := g.IsMuted()
			if err != nil {
				log.Printf("[dispatch] ERROR: %s: %v", CmdIsMuted, err)
				return ERR
			}
			if muted {
				return True
			}
			return False
		},
	}
}

func muteCommand(g Gateway) Command {
	return Command{
		Name: CmdMute,
		NoArgs: func() string {
			if err := g.Mute(); err != nil {
				log.Printf("[dispatch] ERROR: %s: %v", CmdMute, err)
				return ERR
			}
			return OK
		},
	}
}

func unmuteCommand(g Gateway) Command {
	return Command{
		Name: CmdUnmute,
		NoArgs: func() string {
			if err := g.Unmute(); err != nil {
				log.Printf("[dispatch] ERROR: %s: %v", CmdUnmute, err)
				return ERR
			}
			return OK
		},
	}
}

func getVolCommand(g Gateway) Command {
	return Command{
		Name: CmdGetVol,
		NoArgs: func() string {
			v, err := g.Volume()
			if err != nil {
				log.Printf("[dispatch] ERROR: %s: %v", CmdGetVol, err)
				return ERR
			}
			return strconv.Itoa(v)
		},
	}
}

// chgVolCommand moves the volume by the signed delta in its first
// argument.
func chgVolCommand(g Gateway) Command {
	return Command{
		Name: CmdChgVol,
		WithArgs: func(args []string) string {
			delta, err := strconv.Atoi(args[0])
			if err != nil {
				log.Printf("[dispatch] ERROR: %s: can't convert %q to int: %v", CmdChgVol, args[0], err)
				return ERR
			}
			if _, err := g.ChangeVolume(delta); err != nil {
				log.Printf("[dispatch] ERROR: %s %d: %v", CmdChgVol, delta, err)
				return ERR
			}
			return OK
		},
	}
}

func quitCommand(d *Dispatcher) Command {
	return Command{
		Name: CmdQuit,
		NoArgs: func() string {
			log.Printf("[dispatch] quit requested")
			d.Stop()
			return OK
		},
	}
}

func getPortCommand(n transport.Net) Command {
	return Command{
		Name:   CmdGetPort,
		NoArgs: func() string {
			port := n.UsedPort()
			if port == "" {
				log.Printf("[dispatch] ERROR: %s: no port is bound", CmdGetPort)
				return ERR
			}
			return port
		},
	}
}

// chgPortCommand rebinds the network transport to its first argument,
// which must be an unprivileged port; further arguments are ignored.
func chgPortCommand(r interface{ RestartNet(string) bool }) Command {
	return Command{
		Name: CmdChgPort,
		WithArgs: func(args []string) string {
			if args[0] == "" {
				log.Printf("[dispatch] ERROR: %s: the given port is empty", CmdChgPort)
				return ERR
			}
			if err := transport.CheckUserPort(args[0]); err != nil {
				log.Printf("[dispatch] ERROR: %s: %v", CmdChgPort, err)
				return ERR
			}
			if len(args) > 1 {
				log.Printf("[dispatch] %s: ignoring extra arguments %q", CmdChgPort, args[1:])
			}
			if r.RestartNet(args[0]) {
				return OK
			}
			return ERR
		},
	}
}
