package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	ConnWiFi = "wifi"
	ConnBT   = "bt"
)

// State is what the daemon remembers between launches: how it was last
// started and the last WiFi port it served on.
type State struct {
	ConnType string
	Port     string
}

// LoadState reads the state file at path. A missing file yields the zero
// State.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state %s: %w", path, err)
	}

	kv := ParseKV(string(data))
	return State{ConnType: kv["conntype"], Port: kv["port"]}, nil
}

// Save writes s to path, creating the directory. The file is replaced
// atomically.
func (s State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "conntype=%s\n", s.ConnType)
	if s.Port != "" {
		fmt.Fprintf(&b, "port=%s\n", s.Port)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write state %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state %s: %w", path, err)
	}
	return nil
}
