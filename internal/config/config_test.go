package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func envMap(m map[string]string) Getenv {
	return func(k string) string { return m[k] }
}

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soundroidd.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseKV(t *testing.T) {
	got := ParseKV(`
# comment
mixer = mpd
 mpdport=6601
novalue
=orphan
socket=/run/s=1
`)
	want := map[string]string{
		"mixer":   "mpd",
		"mpdport": "6601",
		"socket":  "/run/s=1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseKV() = %v, want %v", got, want)
	}
}

func TestParseDefaults(t *testing.T) {
	home := t.TempDir()
	c, err := Parse([]string{"wifi", "5000"}, envMap(map[string]string{"HOME": home}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.Mixer != MixerAlsa || c.AlsaDevice != "default" || c.AlsaControl != "Master" {
		t.Errorf("mixer defaults = %q %q %q", c.Mixer, c.AlsaDevice, c.AlsaControl)
	}
	if c.BTChannel != 11 {
		t.Errorf("BTChannel = %d, want 11", c.BTChannel)
	}
	if c.Socket != "/tmp/soundroidd.sock" {
		t.Errorf("Socket = %q", c.Socket)
	}
	if want := filepath.Join(home, ".local", "state", "soundroidd", "state"); c.StatePath != want {
		t.Errorf("StatePath = %q, want %q", c.StatePath, want)
	}
	if want := filepath.Join(home, ".config", "soundroidd", "soundroidd.conf"); c.File.Path != want {
		t.Errorf("config path = %q, want %q", c.File.Path, want)
	}
	if !reflect.DeepEqual(c.Args, []string{"wifi", "5000"}) {
		t.Errorf("Args = %q", c.Args)
	}
	if n, a := c.MPDEndpoint(); n != "tcp" || a != "localhost:6600" {
		t.Errorf("MPDEndpoint() = %s %s", n, a)
	}
}

func TestParsePrecedence(t *testing.T) {
	conf := writeConf(t, "mixer=mpd\nmpdhost=confhost\nmpdport=7000\nws-port=8080\nlog=/var/log/conf.log\n")
	env := envMap(map[string]string{
		"XDG_RUNTIME_DIR": "/run/user/1000",
		"MPD_HOST":        "secret@envhost",
		"MPD_PORT":        "6700",
	})

	c, err := Parse([]string{"--config", conf, "--mpdport", "7100", "bt"}, env)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.MPDPort != 7100 {
		t.Errorf("MPDPort = %d, want flag value 7100", c.MPDPort)
	}
	if c.MPDHost != "confhost" {
		t.Errorf("MPDHost = %q, want config value", c.MPDHost)
	}
	if c.MPDPass != "secret" {
		t.Errorf("MPDPass = %q, want env value", c.MPDPass)
	}
	if c.Mixer != MixerMPD || c.WSPort != 8080 || c.LogPath != "/var/log/conf.log" {
		t.Errorf("config values not applied: %+v", c)
	}
	if c.Socket != "/run/user/1000/soundroidd.sock" {
		t.Errorf("Socket = %q", c.Socket)
	}
}

func TestParseStopsAtMode(t *testing.T) {
	c, err := Parse([]string{"--verbose", "ctl", "chg_vol", "-5"}, envMap(nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.Verbose {
		t.Error("Verbose not set")
	}
	if !reflect.DeepEqual(c.Args, []string{"ctl", "chg_vol", "-5"}) {
		t.Errorf("Args = %q", c.Args)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
		conf string
	}{
		{"unknown flag", []string{"--nope"}, ""},
		{"bad mixer", []string{"--mixer", "pulse"}, ""},
		{"bad channel", []string{"--bt-channel", "40"}, ""},
		{"bad ws port", []string{"--ws-port", "70000"}, ""},
		{"bad conf number", nil, "mpdport=abc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.conf != "" {
				args = append([]string{"--config", writeConf(t, tt.conf)}, args...)
			}
			if _, err := Parse(args, envMap(nil)); err == nil {
				t.Error("Parse succeeded")
			}
		})
	}
}

func TestParseMPDEnv(t *testing.T) {
	tests := []struct {
		host string
		port string
		want MPDEnv
	}{
		{"", "", MPDEnv{}},
		{"music.lan", "6601", MPDEnv{Host: "music.lan", Port: 6601}},
		{"/run/mpd/socket", "", MPDEnv{Socket: "/run/mpd/socket"}},
		{"@mpd", "", MPDEnv{Socket: "@mpd"}},
		{"pw@@mpd", "", MPDEnv{Pass: "pw", Socket: "@mpd"}},
		{"pw@music.lan", "", MPDEnv{Pass: "pw", Host: "music.lan"}},
		{"pw@/run/mpd/socket", "x", MPDEnv{Pass: "pw", Socket: "/run/mpd/socket"}},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := ParseMPDEnv(envMap(map[string]string{"MPD_HOST": tt.host, "MPD_PORT": tt.port}))
			if got != tt.want {
				t.Errorf("ParseMPDEnv(%q, %q) = %+v, want %+v", tt.host, tt.port, got, tt.want)
			}
		})
	}
}

func TestMPDEndpointPrefersSocket(t *testing.T) {
	c, err := Parse([]string{"--mpdsocket", "/run/mpd/socket"}, envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	if n, a := c.MPDEndpoint(); n != "unix" || a != "/run/mpd/socket" {
		t.Errorf("MPDEndpoint() = %s %s", n, a)
	}
}

func TestFileDump(t *testing.T) {
	f := LoadFile(writeConf(t, "mixer=memory"))
	var buf bytes.Buffer
	f.Dump(&buf, true)
	if !strings.Contains(buf.String(), "mixer=memory\n-----") {
		t.Errorf("Dump() = %q", buf.String())
	}

	buf.Reset()
	LoadFile(filepath.Join(t.TempDir(), "missing")).Dump(&buf, true)
	if !strings.Contains(buf.String(), "not found") {
		t.Errorf("Dump() of missing file = %q", buf.String())
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state")

	st, err := LoadState(path)
	if err != nil || st != (State{}) {
		t.Fatalf("LoadState(missing) = %+v, %v", st, err)
	}

	want := State{ConnType: ConnWiFi, Port: "5001"}
	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got != want {
		t.Errorf("LoadState() = %+v, want %+v", got, want)
	}
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soundroidd.pid")
	if err := WritePID(path); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if err := RemovePID(path); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file left behind")
	}

	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemovePID(path); err == nil {
		t.Error("RemovePID removed another process's pid file")
	}
}
