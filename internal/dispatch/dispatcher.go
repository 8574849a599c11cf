// Package dispatch is the command router at the centre of the daemon. A
// Dispatcher polls each of its transports in turn, runs the request it
// finds against its command table and answers on the same transport.
package dispatch

import (
	"errors"
	"log"
	"sync"
	"time"

	"soundroidd/internal/transport"
)

// DefaultPollInterval is the pause after polling each transport.
const DefaultPollInterval = 100 * time.Millisecond

// Verbose enables a log line per executed request.
var Verbose bool

// ErrStarted is returned by Start on a dispatcher that already ran or was
// stopped before it started.
var ErrStarted = errors.New("dispatcher already started or stopped")

// State is the dispatcher lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// Option adjusts a Dispatcher at construction.
type Option func(*Dispatcher)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.interval = d }
}

// Dispatcher owns the command table and the transports it polls.
type Dispatcher struct {
	flavor     string
	commands   Table
	transports []transport.Transport
	interval   time.Duration

	mu         sync.Mutex
	state      State
	shouldStop bool
	runs       map[transport.Transport]chan struct{}
	stopped    chan struct{}
}

// newDispatcher wires the commands every flavor has. net is polled first,
// then locals in order.
func newDispatcher(flavor string, net transport.Net, g Gateway, locals []transport.Transport, opts []Option) *Dispatcher {
	d := &Dispatcher{
		flavor:     flavor,
		commands:   make(Table),
		transports: append([]transport.Transport{net}, locals...),
		interval:   DefaultPollInterval,
		runs:       make(map[transport.Transport]chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}

	for _, c := range []Command{
		helloCommand(),
		localIPCommand(net),
		connectedIPCommand(net),
		isMutedCommand(g),
		muteCommand(g),
		unmuteCommand(g),
		chgVolCommand(g),
		getVolCommand(g),
		quitCommand(d),
	} {
		d.commands.add(c)
	}
	return d
}

// Start runs every transport on its own goroutine and then polls them on
// the caller's goroutine until Stop. It returns once all transports have
// finished.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.state != StateCreated || d.shouldStop {
		d.mu.Unlock()
		return ErrStarted
	}
	d.state = StateRunning
	d.mu.Unlock()

	for _, t := range d.transports {
		d.spawn(t)
	}
	log.Printf("[dispatch] %s dispatcher started with %d transports", d.flavor, len(d.transports))

	for !d.IsStopped() {
		for _, t := range d.transports {
			if req := t.Receive(); req != "" {
				resp := d.Exec(req)
				if Verbose {
					log.Printf("[dispatch] %s: %q -> %q", t.Name(), req, resp)
				}
				t.Send(resp)
			}
			time.Sleep(d.interval)
		}
	}

	d.setState(StateStopping)
	d.shutdown()
	return nil
}

// Exec runs one request line and returns the response text.
func (d *Dispatcher) Exec(line string) string {
	name, args := Parse(line)
	if name == "" {
		log.Printf("[dispatch] ERROR: can't parse the command %q", line)
		return ERR
	}

	cmd, ok := d.commands[name]
	if !ok {
		log.Printf("[dispatch] ERROR: the command %q doesn't exist", line)
		return ERR
	}

	resp := cmd.Exec(args)
	if resp == "" {
		log.Printf("[dispatch] ERROR: %s produced an empty answer", name)
		return ERR
	}
	return resp
}

// Stop asks the loop to finish. It is safe to call more than once and from
// any goroutine. A dispatcher that never started stops its transports here
// and goes straight to STOPPED.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.shouldStop {
		d.mu.Unlock()
		return
	}
	d.shouldStop = true
	created := d.state == StateCreated
	if created {
		d.state = StateStopping
	}
	d.mu.Unlock()

	if created {
		d.shutdown()
	}
}

func (d *Dispatcher) IsStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shouldStop
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Wait blocks until the dispatcher is STOPPED.
func (d *Dispatcher) Wait() {
	<-d.stopped
}

// Done is closed once the dispatcher is STOPPED.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// shutdown stops every transport in list order and waits for their
// goroutines.
func (d *Dispatcher) shutdown() {
	for _, t := range d.transports {
		t.Stop()
	}
	for _, t := range d.transports {
		d.join(t)
	}
	d.setState(StateStopped)
	close(d.stopped)
	log.Printf("[dispatch] the %s dispatcher has stopped", d.flavor)
}

// spawn runs t on a fresh goroutine.
func (d *Dispatcher) spawn(t transport.Transport) {
	done := make(chan struct{})
	d.mu.Lock()
	d.runs[t] = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		t.Run()
	}()
}

// join waits for t's goroutine, if any.
func (d *Dispatcher) join(t transport.Transport) {
	d.mu.Lock()
	done := d.runs[t]
	delete(d.runs, t)
	d.mu.Unlock()

	if done != nil {
		<-done
	}
}

// running reports whether t's goroutine is alive.
func (d *Dispatcher) running(t transport.Transport) bool {
	d.mu.Lock()
	done, ok := d.runs[t]
	d.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
