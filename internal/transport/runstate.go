package transport

import "sync"

// Status is the run flag of a transport.
type Status int

const (
	StatusRun Status = iota + 1
	StatusStop
)

func (s Status) String() string {
	switch s {
	case StatusRun:
		return "RUN"
	case StatusStop:
		return "STOP"
	}
	return "UNKNOWN"
}

// RunState is a transport's RUN/STOP flag. It starts armed (RUN); Stop
// latches it to STOP until Arm is called again, so a Stop that lands before
// Run begins is never lost.
type RunState struct {
	mu     sync.Mutex
	status Status
	done   chan struct{}
}

func NewRunState() *RunState {
	return &RunState{status: StatusRun, done: make(chan struct{})}
}

// Arm resets a stopped state to RUN with a fresh Done channel.
func (s *RunState) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusStop {
		s.status = StatusRun
		s.done = make(chan struct{})
	}
}

// Stop sets STOP and closes Done. Calling it twice is harmless.
func (s *RunState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusStop {
		return
	}
	s.status = StatusStop
	close(s.done)
}

func (s *RunState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *RunState) Running() bool {
	return s.Status() == StatusRun
}

// Done is closed when the current run is stopped.
func (s *RunState) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
