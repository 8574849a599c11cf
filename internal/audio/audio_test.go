package audio

import (
	"errors"
	"testing"
)

func TestNewProbesMixer(t *testing.T) {
	m := NewMemory(50, false)
	m.Fail(errors.New("no card"))

	if _, err := New(m); !errors.Is(err, ErrMixer) {
		t.Fatalf("New() err = %v, want ErrMixer", err)
	}

	m.Fail(nil)
	if _, err := New(m); err != nil {
		t.Fatalf("New() err = %v", err)
	}
}

func TestChangeVolumeClamps(t *testing.T) {
	tests := []struct {
		name  string
		start int
		delta int
		want  int
	}{
		{"up", 50, 10, 60},
		{"down", 50, -20, 30},
		{"zero delta", 42, 0, 42},
		{"above max", 95, 10, 100},
		{"below min", 5, -10, 0},
		{"huge up", 0, 1 << 30, 100},
		{"huge down", 100, -(1 << 30), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(NewMemory(tt.start, false))
			if err != nil {
				t.Fatal(err)
			}
			got, err := g.ChangeVolume(tt.delta)
			if err != nil {
				t.Fatalf("ChangeVolume: %v", err)
			}
			if got != tt.want {
				t.Errorf("ChangeVolume(%d) from %d = %d, want %d", tt.delta, tt.start, got, tt.want)
			}
			if v, _ := g.Volume(); v != tt.want {
				t.Errorf("Volume() = %d, want %d", v, tt.want)
			}
		})
	}
}

func TestMuteIsIdempotent(t *testing.T) {
	m := NewMemory(50, false)
	g, err := New(m)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := g.Mute(); err != nil {
			t.Fatalf("Mute: %v", err)
		}
	}
	if muted, _ := g.IsMuted(); !muted {
		t.Fatal("IsMuted() = false after Mute")
	}
	if m.Writes() != 1 {
		t.Errorf("mixer written %d times for repeated Mute, want 1", m.Writes())
	}

	for i := 0; i < 2; i++ {
		if err := g.Unmute(); err != nil {
			t.Fatalf("Unmute: %v", err)
		}
	}
	if muted, _ := g.IsMuted(); muted {
		t.Fatal("IsMuted() = true after Unmute")
	}
	if m.Writes() != 2 {
		t.Errorf("mixer written %d times, want 2", m.Writes())
	}
}

func TestGatewayErrorsAreWrapped(t *testing.T) {
	m := NewMemory(50, false)
	g, err := New(m)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("device busy")
	m.Fail(boom)

	if _, err := g.ChangeVolume(5); !errors.Is(err, boom) {
		t.Errorf("ChangeVolume err = %v", err)
	}
	if _, err := g.Volume(); !errors.Is(err, boom) {
		t.Errorf("Volume err = %v", err)
	}
	if err := g.Mute(); !errors.Is(err, boom) {
		t.Errorf("Mute err = %v", err)
	}
	if _, err := g.IsMuted(); !errors.Is(err, boom) {
		t.Errorf("IsMuted err = %v", err)
	}
}

func TestClamp(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 55: 55, 100: 100, 101: 100} {
		if got := Clamp(in); got != want {
			t.Errorf("Clamp(%d) = %d, want %d", in, got, want)
		}
	}
}
