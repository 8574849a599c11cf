package audio

import "sync"

// Memory is an in-process mixer for dry runs and tests.
type Memory struct {
	mu     sync.Mutex
	vol    int
	muted  bool
	err    error
	writes int
}

func NewMemory(vol int, muted bool) *Memory {
	return &Memory{vol: vol, muted: muted}
}

func (m *Memory) Volume() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.vol, nil
}

func (m *Memory) SetVolume(percent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.vol = percent
	m.writes++
	return nil
}

func (m *Memory) Muted() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.muted, nil
}

func (m *Memory) SetMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.muted = muted
	m.writes++
	return nil
}

// Fail makes every later call return err; nil restores normal operation.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Writes counts the SetVolume and SetMuted calls that reached the mixer.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
