package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default local store directory for the host.
// Order: $XDG_DATA_HOME/pulse, /var/lib/pulse, macOS Application Support,
// Windows AppData, then ~/.pulse. Without a home directory it is ./data.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pulse")
	}
	if isDir("/var/lib") && writable("/var/lib") {
		return "/var/lib/pulse"
	}
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "Pulse")
	}
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "Pulse")
	}
	return filepath.Join(homeDir, ".pulse")
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func writable(p string) bool {
	f, err := os.CreateTemp(p, ".pulse-write-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
