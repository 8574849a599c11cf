package audio

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

const (
	DefaultAlsaDevice  = "default"
	DefaultAlsaControl = "Master"
)

// amixerTimeout bounds one amixer invocation.
const amixerTimeout = 3 * time.Second

var (
	percentRe = regexp.MustCompile(`\[(\d{1,3})%\]`)
	switchRe  = regexp.MustCompile(`\[(on|off)\]`)
)

// Alsa drives a simple mixer control through amixer(1). Each call runs
// one short-lived amixer process.
type Alsa struct {
	Device  string
	Control string

	// run executes amixer with args; replaced in tests.
	run func(ctx context.Context, args ...string) ([]byte, error)
}

func NewAlsa(device, control string) *Alsa {
	if device == "" {
		device = DefaultAlsaDevice
	}
	if control == "" {
		control = DefaultAlsaControl
	}
	return &Alsa{Device: device, Control: control, run: runAmixer}
}

func runAmixer(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "amixer", args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("amixer %v: %w: %s", args, err, out)
	}
	return out, nil
}

func (a *Alsa) amixer(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), amixerTimeout)
	defer cancel()
	return a.run(ctx, append([]string{"-D", a.Device}, args...)...)
}

func (a *Alsa) get() (int, bool, error) {
	out, err := a.amixer("sget", a.Control)
	if err != nil {
		return 0, false, err
	}
	return parseAmixer(out)
}

func (a *Alsa) Volume() (int, error) {
	v, _, err := a.get()
	return v, err
}

func (a *Alsa) SetVolume(percent int) error {
	_, err := a.amixer("-q", "sset", a.Control, strconv.Itoa(percent)+"%")
	return err
}

func (a *Alsa) Muted() (bool, error) {
	_, muted, err := a.get()
	return muted, err
}

func (a *Alsa) SetMuted(muted bool) error {
	state := "unmute"
	if muted {
		state = "mute"
	}
	_, err := a.amixer("-q", "sset", a.Control, state)
	return err
}

// parseAmixer reads the first channel's "[NN%]" and "[on|off]" fields
// from amixer sget output. Controls without a switch are never muted.
func parseAmixer(out []byte) (int, bool, error) {
	m := percentRe.FindSubmatch(out)
	if m == nil {
		return 0, false, fmt.Errorf("no volume in amixer output %q", out)
	}
	vol, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false, fmt.Errorf("parse volume %q: %w", m[1], err)
	}

	muted := false
	if s := switchRe.FindSubmatch(out); s != nil {
		muted = string(s[1]) == "off"
	}
	return vol, muted, nil
}
