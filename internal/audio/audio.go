// Package audio is the sound gateway the volume commands act through. A
// Gateway wraps one Mixer backend; every call opens the mixer, acts and
// closes it again, so the daemon never holds a mixer handle between
// requests.
package audio

import (
	"errors"
	"fmt"
	"log"
)

const (
	MinVolume = 0
	MaxVolume = 100
)

// ErrMixer marks a mixer that cannot be opened at all.
var ErrMixer = errors.New("mixer unavailable")

// Mixer is a volume/mute control. Volumes are percentages.
type Mixer interface {
	Volume() (int, error)
	SetVolume(percent int) error
	Muted() (bool, error)
	SetMuted(muted bool) error
}

// Gateway adds clamping and idempotent mute on top of a Mixer.
type Gateway struct {
	m Mixer
}

// New probes m once and fails with ErrMixer if it cannot be read.
func New(m Mixer) (*Gateway, error) {
	if _, err := m.Volume(); err != nil {
		return nil, fmt.Errorf("%w: read volume: %v", ErrMixer, err)
	}
	if _, err := m.Muted(); err != nil {
		return nil, fmt.Errorf("%w: read mute switch: %v", ErrMixer, err)
	}
	return &Gateway{m: m}, nil
}

// Mute switches the output off unless it already is.
func (g *Gateway) Mute() error {
	log.Printf("[audio] execute mute")
	return g.setMuted(true)
}

// Unmute switches the output on unless it already is.
func (g *Gateway) Unmute() error {
	log.Printf("[audio] execute unmute")
	return g.setMuted(false)
}

func (g *Gateway) setMuted(muted bool) error {
	cur, err := g.m.Muted()
	if err != nil {
		return fmt.Errorf("read mute switch: %w", err)
	}
	if cur == muted {
		return nil
	}
	if err := g.m.SetMuted(muted); err != nil {
		return fmt.Errorf("set mute switch: %w", err)
	}
	return nil
}

func (g *Gateway) IsMuted() (bool, error) {
	muted, err := g.m.Muted()
	if err != nil {
		return false, fmt.Errorf("read mute switch: %w", err)
	}
	return muted, nil
}

// Volume returns the current volume percentage.
func (g *Gateway) Volume() (int, error) {
	v, err := g.m.Volume()
	if err != nil {
		return 0, fmt.Errorf("read volume: %w", err)
	}
	return Clamp(v), nil
}

// ChangeVolume moves the volume by delta percent, clamped to 0..100, and
// returns the new value.
func (g *Gateway) ChangeVolume(delta int) (int, error) {
	log.Printf("[audio] change volume by %d", delta)

	cur, err := g.m.Volume()
	if err != nil {
		return 0, fmt.Errorf("read volume: %w", err)
	}
	next := Clamp(cur + delta)
	if err := g.m.SetVolume(next); err != nil {
		return 0, fmt.Errorf("set volume %d: %w", next, err)
	}
	return next, nil
}

// Clamp limits v to MinVolume..MaxVolume.
func Clamp(v int) int {
	switch {
	case v < MinVolume:
		return MinVolume
	case v > MaxVolume:
		return MaxVolume
	}
	return v
}
