// Package config resolves the daemon's settings. Every value comes from,
// in order of precedence, a command-line flag, the key=value config file,
// the MPD_HOST/MPD_PORT environment (MPD settings only), and a built-in
// default.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

const (
	AppName = "soundroidd"

	MixerAlsa   = "alsa"
	MixerMPD    = "mpd"
	MixerMemory = "memory"

	defaultMPDHost   = "localhost"
	defaultMPDPort   = 6600
	defaultBTChannel = 11
)

// Config is the resolved daemon configuration.
type Config struct {
	ConfigPath string
	Socket     string
	LogPath    string
	PIDFile    string
	StatePath  string
	Verbose    bool

	Mixer       string
	AlsaDevice  string
	AlsaControl string
	MPDHost     string
	MPDPort     int
	MPDSocket   string
	MPDPass     string

	WSPort    int
	BTChannel int
	BTAdapter string

	ShowHelp bool

	// Args are the positional arguments: the launch mode and its operands.
	Args []string

	// File is the config file that was consulted.
	File File

	fs *flag.FlagSet
}

// Getenv looks up an environment variable; os.Getenv in production.
type Getenv func(string) string

// Parse reads flags from args (without the program name), then the config
// file, then the environment.
func Parse(args []string, getenv Getenv) (*Config, error) {
	c := &Config{}

	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	// Everything after the mode word belongs to it, so "ctl chg_vol -5"
	// is not read as a flag.
	fs.SetInterspersed(false)

	fs.StringVar(&c.ConfigPath, "config", "", "path to config file")
	fs.StringVar(&c.Socket, "socket", "", "IPC socket <path>")
	fs.StringVar(&c.LogPath, "log", "", "write logs to file instead of stderr")
	fs.StringVar(&c.PIDFile, "pidfile", "", "write the daemon pid to <path>")
	fs.StringVar(&c.StatePath, "state", "", "connection state file <path>")
	fs.BoolVarP(&c.Verbose, "verbose", "v", false, "Enable verbose logging")
	fs.StringVar(&c.Mixer, "mixer", "", "mixer backend: alsa, mpd or memory")
	fs.StringVar(&c.AlsaDevice, "alsa-device", "", "ALSA mixer device")
	fs.StringVar(&c.AlsaControl, "alsa-control", "", "ALSA simple mixer control")
	fs.StringVar(&c.MPDHost, "mpdhost", "", "MPD host <address>")
	fs.IntVar(&c.MPDPort, "mpdport", 0, "MPD host <port>")
	fs.StringVar(&c.MPDSocket, "mpdsocket", "", "MPD unix socket <path>")
	fs.StringVar(&c.MPDPass, "mpdpass", "", "MPD server password")
	fs.IntVar(&c.WSPort, "ws-port", 0, "serve the web panel on <port> (0 disables)")
	fs.IntVar(&c.BTChannel, "bt-channel", 0, "RFCOMM channel for bt mode")
	fs.StringVar(&c.BTAdapter, "bt-adapter", "", "Bluetooth adapter, e.g. hci0")
	fs.BoolVarP(&c.ShowHelp, "help", "h", false, "Print help and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	c.fs = fs
	c.Args = fs.Args()

	path := c.ConfigPath
	if path == "" {
		path = DefaultConfigPath(getenv)
	}
	c.File = LoadFile(path)
	kv := ParseKV(c.File.Data)
	env := ParseMPDEnv(getenv)

	pick(&c.Socket, kv["socket"], DefaultSocketPath(getenv))
	pick(&c.LogPath, kv["log"], "")
	pick(&c.PIDFile, kv["pidfile"], "")
	pick(&c.StatePath, kv["state"], DefaultStatePath(getenv))
	pick(&c.Mixer, kv["mixer"], MixerAlsa)
	pick(&c.AlsaDevice, kv["alsa-device"], "default")
	pick(&c.AlsaControl, kv["alsa-control"], "Master")
	pick(&c.MPDSocket, kv["mpdsocket"], env.Socket)
	pick(&c.MPDHost, kv["mpdhost"], env.Host, defaultMPDHost)
	pick(&c.MPDPass, kv["mpdpass"], env.Pass)
	pick(&c.BTAdapter, kv["bt-adapter"], "")

	var err error
	if c.MPDPort, err = pickInt(c.MPDPort, kv, "mpdport", env.Port, defaultMPDPort); err != nil {
		return nil, err
	}
	if c.WSPort, err = pickInt(c.WSPort, kv, "ws-port", 0); err != nil {
		return nil, err
	}
	if c.BTChannel, err = pickInt(c.BTChannel, kv, "bt-channel", defaultBTChannel); err != nil {
		return nil, err
	}
	if !c.Verbose {
		c.Verbose, _ = strconv.ParseBool(kv["verbose"])
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Mixer {
	case MixerAlsa, MixerMPD, MixerMemory:
	default:
		return fmt.Errorf("unknown mixer %q (want alsa, mpd or memory)", c.Mixer)
	}
	if c.WSPort < 0 || c.WSPort > 65535 {
		return fmt.Errorf("ws-port %d out of range", c.WSPort)
	}
	if c.BTChannel < 1 || c.BTChannel > 30 {
		return fmt.Errorf("bt-channel %d out of range 1..30", c.BTChannel)
	}
	if c.MPDPort < 1 || c.MPDPort > 65535 {
		return fmt.Errorf("mpdport %d out of range", c.MPDPort)
	}
	return nil
}

// MPDEndpoint returns the network and address MPD is reached at: the unix
// socket when one is configured, TCP otherwise.
func (c *Config) MPDEndpoint() (network, addr string) {
	if c.MPDSocket != "" {
		return "unix", c.MPDSocket
	}
	return "tcp", fmt.Sprintf("%s:%d", c.MPDHost, c.MPDPort)
}

// Usage writes the flag help to w.
func (c *Config) Usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [flags] bt\n", AppName)
	fmt.Fprintf(w, "       %s [flags] wifi [port]\n", AppName)
	fmt.Fprintf(w, "       %s [flags] ctl <command> [args]\n\n", AppName)
	c.fs.SetOutput(w)
	c.fs.PrintDefaults()
	c.fs.SetOutput(io.Discard)
}

// pick leaves a non-empty *dst alone and otherwise takes the first
// non-empty fallback.
func pick(dst *string, fallbacks ...string) {
	if *dst != "" {
		return
	}
	for _, v := range fallbacks {
		if v != "" {
			*dst = v
			return
		}
	}
}

func pickInt(cur int, kv map[string]string, key string, fallbacks ...int) (int, error) {
	if cur != 0 {
		return cur, nil
	}
	if v := kv[key]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("config %s=%q: %w", key, v, err)
		}
		return n, nil
	}
	for _, n := range fallbacks {
		if n != 0 {
			return n, nil
		}
	}
	return 0, nil
}

// File is a config file as found on disk.
type File struct {
	Path   string
	Exists bool
	Data   string
}

// LoadFile reads path. A missing file is not an error.
func LoadFile(path string) File {
	f := File{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return f
	}
	f.Exists = true
	f.Data = string(data)
	return f
}

// Dump prints the config path and, when verbose, its contents.
func (f File) Dump(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "config path: %s\n", f.Path)

	if !f.Exists {
		fmt.Fprintln(w, "config file: not found")
		return
	}

	if verbose {
		fmt.Fprintln(w, "config contents:")
		fmt.Fprintln(w, "-----")
		fmt.Fprint(w, f.Data)
		if !strings.HasSuffix(f.Data, "\n") {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "-----")
	}
}

// ParseKV parses key=value lines into a map. Blank lines, '#' comments and
// lines without '=' are skipped.
func ParseKV(data string) map[string]string {
	cfg := make(map[string]string)

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)

		if k != "" {
			cfg[k] = v
		}
	}
	return cfg
}

func xdgDir(getenv Getenv, xdgVar string, homeRel ...string) string {
	if d := getenv(xdgVar); d != "" {
		return d
	}
	home := getenv("HOME")
	if home == "" {
		home = os.TempDir()
	}
	return filepath.Join(append([]string{home}, homeRel...)...)
}

// DefaultConfigPath is $XDG_CONFIG_HOME/soundroidd/soundroidd.conf.
func DefaultConfigPath(getenv Getenv) string {
	return filepath.Join(xdgDir(getenv, "XDG_CONFIG_HOME", ".config"), AppName, AppName+".conf")
}

// DefaultStatePath is $XDG_STATE_HOME/soundroidd/state.
func DefaultStatePath(getenv Getenv) string {
	return filepath.Join(xdgDir(getenv, "XDG_STATE_HOME", ".local", "state"), AppName, "state")
}

// DefaultSocketPath is $XDG_RUNTIME_DIR/soundroidd.sock, or under /tmp
// when there is no runtime dir.
func DefaultSocketPath(getenv Getenv) string {
	dir := getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, AppName+".sock")
}
