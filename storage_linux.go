//go:build linux

package metacache

import (
	"os"
	"path/filepath"
)

// getDefaultDataDir returns the default cache directory for Linux.
// Uses $XDG_DATA_HOME/<appName>/cache/ if set,
// otherwise ~/.local/share/<appName>/cache/
func getDefaultDataDir(appName string) (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName, "cache"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName, "cache"), nil
}
