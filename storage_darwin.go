//go:build darwin

package metacache

import (
	"os"
	"path/filepath"
)

// getDefaultDataDir returns the default cache directory for macOS.
// Returns ~/Library/Application Support/<appName>/cache/
func getDefaultDataDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "Application Support", appName, "cache"), nil
}
