// Command soundroidd is the remote volume-control daemon for the soundroid
// phone app. It serves the phone over WiFi or Bluetooth, local tools over
// a unix socket, and optionally a browser panel over WebSocket.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"soundroidd/internal/audio"
	"soundroidd/internal/config"
	"soundroidd/internal/dispatch"
	"soundroidd/internal/transport"
	"soundroidd/internal/transport/bluetooth"
	"soundroidd/internal/transport/ipc"
	"soundroidd/internal/transport/web"
)

// server is the part of a dispatcher variant main drives.
type server interface {
	Start() error
	Stop()
	IsStopped() bool
	Done() <-chan struct{}
	Net() transport.Net
}

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowHelp {
		cfg.Usage(os.Stdout)
		return
	}

	// Must come before the first log line.
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file %s: %v", cfg.LogPath, err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if len(cfg.Args) > 0 && cfg.Args[0] == modeCtl {
		if err := runCtl(cfg.Socket, cfg.Args[1:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(cfg); err != nil {
		log.Printf("[main] %v", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
} // func main()

func runDaemon(cfg *config.Config) error {
	dispatch.Verbose = cfg.Verbose
	cfg.File.Dump(log.Writer(), cfg.Verbose)

	st, err := config.LoadState(cfg.StatePath)
	if err != nil {
		log.Printf("[config] %v; starting without remembered state", err)
	}
	l, err := parseLaunch(cfg.Args, st)
	if err != nil {
		return err
	}

	g, err := audio.New(newMixer(cfg))
	if err != nil {
		return err
	}

	srv, err := newServer(cfg, l, g)
	if err != nil {
		return err
	}

	if cfg.PIDFile != "" {
		if err := config.WritePID(cfg.PIDFile); err != nil {
			log.Printf("[config] %v", err)
		} else {
			defer func() {
				if err := config.RemovePID(cfg.PIDFile); err != nil {
					log.Printf("[config] remove pid file: %v", err)
				}
			}()
		}
	}

	st.ConnType = l.conn
	if l.conn == config.ConnWiFi {
		st.Port = srv.Net().UsedPort()
	}
	saveState(cfg.StatePath, st)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := serve(srv, sigs); err != nil {
		return err
	}

	// chg_port may have moved the listener; remember where it ended up.
	if l.conn == config.ConnWiFi {
		if port := srv.Net().UsedPort(); port != "" {
			st.Port = port
			saveState(cfg.StatePath, st)
		}
	}
	log.Printf("[main] cleanup steps completed, exiting")
	return nil
}

// serve runs srv until it stops by itself or a signal arrives on sigs. A
// signal that lands before the dispatcher starts is a clean exit.
func serve(srv server, sigs <-chan os.Signal) error {
	go func() {
		select {
		case s := <-sigs:
			log.Printf("[main] %v received, shutting down", s)
			srv.Stop()
		case <-srv.Done():
		}
	}()

	err := srv.Start()
	if errors.Is(err, dispatch.ErrStarted) && srv.IsStopped() {
		<-srv.Done()
		log.Printf("[main] stopped before the dispatcher started")
		return nil
	}
	return err
}

func saveState(path string, st config.State) {
	if err := st.Save(path); err != nil {
		log.Printf("[config] %v", err)
	}
}

func newMixer(cfg *config.Config) audio.Mixer {
	switch cfg.Mixer {
	case config.MixerMPD:
		network, addr := cfg.MPDEndpoint()
		log.Printf("[audio] using MPD at %s %s", network, addr)
		return audio.NewMPD(network, addr, cfg.MPDPass)
	case config.MixerMemory:
		log.Printf("[audio] using the in-memory mixer; nothing will sound different")
		return audio.NewMemory(50, false)
	}
	log.Printf("[audio] using ALSA %s/%s", cfg.AlsaDevice, cfg.AlsaControl)
	return audio.NewAlsa(cfg.AlsaDevice, cfg.AlsaControl)
}

// newServer opens the local transports and builds the dispatcher variant
// for l. Anything opened is released again on failure.
func newServer(cfg *config.Config, l launch, g dispatch.Gateway) (server, error) {
	sock, err := ipc.New(cfg.Socket)
	if err != nil {
		if errors.Is(err, transport.ErrLifecycle) {
			return nil, fmt.Errorf("%w (is another soundroidd running?)", err)
		}
		return nil, err
	}
	locals := []transport.Transport{sock}

	if cfg.WSPort > 0 {
		panel, err := web.New(fmt.Sprintf(":%d", cfg.WSPort))
		if err != nil {
			sock.Stop()
			return nil, err
		}
		locals = append(locals, panel)
	}

	if l.conn == config.ConnBT {
		b, err := dispatch.NewBluetooth(bluetooth.Options{Channel: cfg.BTChannel, Adapter: cfg.BTAdapter}, g, locals)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	w, err := dispatch.NewWiFi(l.port, g, locals)
	if err != nil {
		return nil, err
	}
	return w, nil
}
