// Package xdg resolves the per-user directories rabbitwatch reads its
// config from and writes its archive and logs to.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "rabbitwatch"

// Dir returns envVar/rabbitwatch when envVar is set, otherwise
// ~/fallbackDot/rabbitwatch.
func Dir(envVar, fallbackDot string) (string, error) {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallbackDot, appName), nil
}

// ConfigDir holds config.toml.
func ConfigDir() (string, error) {
	return Dir("XDG_CONFIG_HOME", ".config")
}

// DataDir holds the message archive.
func DataDir() (string, error) {
	return Dir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir holds log files.
func StateDir() (string, error) {
	return Dir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}
