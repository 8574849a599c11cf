package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"soundroidd/internal/audio"
	"soundroidd/internal/config"
	"soundroidd/internal/dispatch"
	"soundroidd/internal/transport/ipc"
)

func TestParseLaunch(t *testing.T) {
	remembered := config.State{ConnType: config.ConnWiFi, Port: "8001"}

	tests := []struct {
		name    string
		args    []string
		st      config.State
		want    launch
		wantErr bool
	}{
		{"bt", []string{"bt"}, config.State{}, launch{conn: config.ConnBT}, false},
		{"bt extra", []string{"bt", "1"}, config.State{}, launch{}, true},
		{"wifi port", []string{"wifi", "9000"}, config.State{}, launch{conn: config.ConnWiFi, port: "9000"}, false},
		{"wifi remembered", []string{"wifi"}, remembered, launch{conn: config.ConnWiFi, port: "8001"}, false},
		{"wifi overrides remembered", []string{"wifi", "9000"}, remembered, launch{conn: config.ConnWiFi, port: "9000"}, false},
		{"wifi nothing remembered", []string{"wifi"}, config.State{}, launch{}, true},
		{"wifi privileged", []string{"wifi", "80"}, config.State{}, launch{}, true},
		{"wifi too high", []string{"wifi", "70000"}, config.State{}, launch{}, true},
		{"wifi not a number", []string{"wifi", "http"}, config.State{}, launch{}, true},
		{"wifi extra", []string{"wifi", "9000", "9001"}, config.State{}, launch{}, true},
		{"no mode", nil, config.State{}, launch{}, true},
		{"unknown mode", []string{"usb"}, config.State{}, launch{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLaunch(tt.args, tt.st)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLaunch(%q) = %+v, want error", tt.args, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLaunch(%q): %v", tt.args, err)
			}
			if got != tt.want {
				t.Fatalf("parseLaunch(%q) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestRunCtl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.sock")
	tr, err := ipc.New(path)
	if err != nil {
		t.Fatalf("ipc.New: %v", err)
	}
	done := make(chan struct{})
	go func() {
		tr.Run()
		close(done)
	}()
	t.Cleanup(func() {
		tr.Stop()
		<-done
	})

	// Play the dispatcher for the two requests below.
	go func() {
		answers := map[string]string{"get_port": "8001", "chg_port 80": "ERR"}
		for served := 0; served < len(answers); {
			select {
			case <-done:
				return
			default:
			}
			if req := tr.Receive(); req != "" {
				tr.Send(answers[req])
				served++
				continue
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	var out bytes.Buffer
	if err := runCtl(path, []string{"get_port"}, &out); err != nil {
		t.Fatalf("runCtl get_port: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "8001" {
		t.Fatalf("output = %q, want 8001", got)
	}

	out.Reset()
	if err := runCtl(path, []string{"chg_port", "80"}, &out); !errors.Is(err, ipc.ErrRejected) {
		t.Fatalf("runCtl chg_port 80 = %v, want ErrRejected", err)
	}
	if out.Len() != 0 {
		t.Fatalf("rejected command printed %q", out.String())
	}
}

func TestRunCtlNeedsCommand(t *testing.T) {
	if err := runCtl(filepath.Join(t.TempDir(), "none.sock"), nil, &bytes.Buffer{}); err == nil {
		t.Fatal("runCtl with no command succeeded")
	}
}

func newTestServer(t *testing.T) *dispatch.WiFi {
	t.Helper()

	g, err := audio.New(audio.NewMemory(50, false))
	if err != nil {
		t.Fatalf("audio.New: %v", err)
	}
	w, err := dispatch.NewWiFi("0", g, nil, dispatch.WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewWiFi: %v", err)
	}
	return w
}

// serveAsync runs serve and fails the test if it does not return in time.
func serveAsync(t *testing.T, srv server, sigs <-chan os.Signal) error {
	t.Helper()

	errc := make(chan error, 1)
	go func() { errc <- serve(srv, sigs) }()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func TestServeStoppedBeforeStartIsClean(t *testing.T) {
	srv := newTestServer(t)
	srv.Stop()

	if err := serveAsync(t, srv, make(chan os.Signal)); err != nil {
		t.Fatalf("serve after an early stop = %v, want nil", err)
	}
}

func TestServeSignalStops(t *testing.T) {
	srv := newTestServer(t)
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGTERM

	if err := serveAsync(t, srv, sigs); err != nil {
		t.Fatalf("serve with SIGTERM = %v, want nil", err)
	}
	if s := srv.State(); s != dispatch.StateStopped {
		t.Fatalf("state = %v, want STOPPED", s)
	}
}
