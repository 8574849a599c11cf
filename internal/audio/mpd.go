package audio

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// ErrMPDTimeout is returned when MPD does not finish a call within
// mpdTimeout.
var ErrMPDTimeout = errors.New("mpd timeout")

// mpdTimeout bounds one MPD call, dial included.
var mpdTimeout = 3 * time.Second

// MPD controls the mixer of a Music Player Daemon. Mute disables the
// enabled outputs and unmute re-enables the ones it disabled.
type MPD struct {
	Network  string // "tcp" or "unix"
	Addr     string
	Password string

	mu       sync.Mutex
	disabled []int
}

func NewMPD(network, addr, password string) *MPD {
	return &MPD{Network: network, Addr: addr, Password: password}
}

func (m *MPD) dial() (*mpd.Client, error) {
	if m.Password != "" {
		return mpd.DialAuthenticated(m.Network, m.Addr, m.Password)
	}
	return mpd.Dial(m.Network, m.Addr)
}

// do dials MPD, runs fn and closes the connection. The whole exchange is
// abandoned after mpdTimeout; a client still in flight is closed once it
// returns.
func (m *MPD) do(fn func(*mpd.Client) error, ctx string) error {
	// Unreachable endpoint: fail before the unbounded gompd dial.
	conn, err := net.DialTimeout(m.Network, m.Addr, mpdTimeout)
	if err != nil {
		return fmt.Errorf("%s: dial mpd %s %s: %w", ctx, m.Network, m.Addr, err)
	}
	conn.Close()

	done := make(chan error, 1)
	go func() {
		c, err := m.dial()
		if err != nil {
			done <- fmt.Errorf("dial mpd %s %s: %w", m.Network, m.Addr, err)
			return
		}
		defer c.Close()
		done <- fn(c)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
		return nil
	case <-time.After(mpdTimeout):
		return fmt.Errorf("%s: %w after %v (%s %s)", ctx, ErrMPDTimeout, mpdTimeout, m.Network, m.Addr)
	}
}

func (m *MPD) Volume() (int, error) {
	var vol int
	err := m.do(func(c *mpd.Client) error {
		st, err := c.Status()
		if err != nil {
			return err
		}
		v, err := strconv.Atoi(st["volume"])
		if err != nil {
			return fmt.Errorf("parse volume %q: %w", st["volume"], err)
		}
		if v < 0 {
			return errors.New("mpd has no mixer configured")
		}
		vol = v
		return nil
	}, "volume")
	if err != nil {
		return 0, err
	}
	return vol, nil
}

func (m *MPD) SetVolume(percent int) error {
	return m.do(func(c *mpd.Client) error {
		return c.SetVolume(percent)
	}, "setvol")
}

// Muted reports true when no output is enabled.
func (m *MPD) Muted() (bool, error) {
	muted := true
	err := m.do(func(c *mpd.Client) error {
		outs, err := c.ListOutputs()
		if err != nil {
			return err
		}
		for _, o := range outs {
			if o["outputenabled"] == "1" {
				muted = false
				break
			}
		}
		return nil
	}, "outputs")
	if err != nil {
		return false, err
	}
	return muted, nil
}

func (m *MPD) SetMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// fn may outlive a timed-out do, so it only touches its own copy.
	restore := append([]int(nil), m.disabled...)
	var disabled []int

	err := m.do(func(c *mpd.Client) error {
		outs, err := c.ListOutputs()
		if err != nil {
			return err
		}

		if muted {
			for _, o := range outs {
				if o["outputenabled"] != "1" {
					continue
				}
				id, err := strconv.Atoi(o["outputid"])
				if err != nil {
					log.Printf("[audio] skipping output %q: %v", o["outputname"], err)
					continue
				}
				if err := c.DisableOutput(id); err != nil {
					return err
				}
				disabled = append(disabled, id)
			}
			return nil
		}

		ids := restore
		if len(ids) == 0 {
			for _, o := range outs {
				if id, err := strconv.Atoi(o["outputid"]); err == nil {
					ids = append(ids, id)
				}
			}
		}
		for _, id := range ids {
			if err := c.EnableOutput(id); err != nil {
				return err
			}
		}
		return nil
	}, "mute")
	if err != nil {
		return err
	}
	m.disabled = disabled
	return nil
}
