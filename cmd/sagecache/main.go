// Command sagecache is a standalone harness for the metacache package.
// It demonstrates the CLI integration and provides a working tool.
//
// Configuration is loaded from a YAML file when --config is given (or
// ~/.config/sagecache/config.yaml exists), with environment overrides:
//   - SAGECACHE_REGISTRY_URL: Base URL of the model registry
//   - SAGECACHE_CACHE_DIR: Override for the cache directory
//   - SAGECACHE_API_TOKEN: Registry API token
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	metacache "github.com/arcum42/ComfyUI-SageUtils-sub001"
)

// defaultRegistryURL is used when neither config file nor environment
// provides one.
const defaultRegistryURL = "https://civitai.com"

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid command line arguments.
	ExitInvalidArgs = 2

	// ExitNotFound indicates the registry has no matching entry.
	ExitNotFound = 3

	// ExitNotResolved indicates an artifact name matched no local file.
	ExitNotResolved = 4

	// ExitNetworkError indicates a network or connection failure.
	ExitNetworkError = 5

	// ExitHashMismatch indicates hash verification failed.
	ExitHashMismatch = 6

	// ExitStorageError indicates a cache file operation failed.
	ExitStorageError = 7

	// ExitFileError indicates a local artifact file could not be read.
	ExitFileError = 8
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitInvalidArgs)
	}

	cmd := metacache.NewCommand(cfg)
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCodeFromError(err))
	}
}

// loadConfig assembles the configuration from the optional config file and
// the environment.
func loadConfig() (metacache.Config, error) {
	cfg := metacache.Config{
		AppName:     "sagecache",
		RegistryURL: defaultRegistryURL,
	}

	if path := configFilePath(); path != "" {
		loaded, err := metacache.LoadConfigFile(path)
		if err != nil {
			return metacache.Config{}, err
		}
		loaded.AppName = cfg.AppName
		if loaded.RegistryURL == "" {
			loaded.RegistryURL = cfg.RegistryURL
		}
		cfg = loaded
	}

	if v := os.Getenv("SAGECACHE_REGISTRY_URL"); v != "" {
		cfg.RegistryURL = v
	}
	if v := os.Getenv("SAGECACHE_CACHE_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SAGECACHE_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}

	return cfg, nil
}

// configFilePath returns the config file to load, or "" for none.
// SAGECACHE_CONFIG takes priority; otherwise the default location is used
// when it exists.
func configFilePath() string {
	if path := os.Getenv("SAGECACHE_CONFIG"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".config", "sagecache", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, metacache.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, metacache.ErrNotResolved):
		return ExitNotResolved
	case errors.Is(err, metacache.ErrNetworkError):
		return ExitNetworkError
	case errors.Is(err, metacache.ErrHashMismatch):
		return ExitHashMismatch
	case errors.Is(err, metacache.ErrStorageError):
		return ExitStorageError
	case errors.Is(err, metacache.ErrFileError):
		return ExitFileError
	case errors.Is(err, metacache.ErrInvalidRef):
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}
