package metacache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// weightsExtensions are the file extensions considered when resolving an
// artifact name to a file.
var weightsExtensions = []string{".safetensors", ".sft", ".ckpt", ".pt", ".pth", ".gguf"}

// LoadConfigFile reads a YAML configuration file into a Config. Paths in
// the file may start with ~, which expands to the user's home directory.
// Environment variables override file values:
//
//	<APPNAME>_REGISTRY_URL, <APPNAME>_CACHE_DIR, <APPNAME>_API_TOKEN
func LoadConfigFile(path string) (Config, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", expanded, err)
	}

	if cfg.DataDir != "" {
		if cfg.DataDir, err = ExpandPath(cfg.DataDir); err != nil {
			return Config{}, err
		}
	}
	for category, dirs := range cfg.ModelDirs {
		for i, dir := range dirs {
			if dirs[i], err = ExpandPath(dir); err != nil {
				return Config{}, err
			}
		}
		cfg.ModelDirs[category] = dirs
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides replaces config values with environment settings.
func applyEnvOverrides(cfg *Config) {
	if cfg.AppName == "" {
		return
	}
	if v := os.Getenv(envVarName(cfg.AppName, "REGISTRY_URL")); v != "" {
		cfg.RegistryURL = v
	}
	if v := os.Getenv(envVarName(cfg.AppName, "CACHE_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(envVarName(cfg.AppName, "API_TOKEN")); v != "" {
		cfg.APIToken = v
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// dirResolver resolves artifact names by scanning configured model
// directories. A name matches a file whose base name, with or without a
// known weights extension, equals the name. Subdirectories are searched,
// so "styles/ink-wash" and "ink-wash" both work.
type dirResolver struct {
	// dirs is the flattened list of directories to scan, in category order.
	dirs []string
}

// Ensure dirResolver implements PathResolver.
var _ PathResolver = (*dirResolver)(nil)

// newDirResolver creates a resolver over all configured model directories.
func newDirResolver(modelDirs map[string][]string) *dirResolver {
	var dirs []string
	for _, categoryDirs := range modelDirs {
		dirs = append(dirs, categoryDirs...)
	}
	return &dirResolver{dirs: dirs}
}

// Resolve returns the absolute path for an artifact name.
// Returns ErrNotResolved if no matching file exists.
func (r *dirResolver) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotResolved)
	}

	name = filepath.ToSlash(name)

	for _, dir := range r.dirs {
		var found string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil // unreadable entries are skipped, not fatal
			}
			if matchesName(dir, path, name) {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			continue
		}
		if found != "" {
			abs, err := filepath.Abs(found)
			if err != nil {
				return found, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotResolved, name)
}

// matchesName reports whether the file at path matches the artifact name,
// either by its base name or by its path relative to dir, with any known
// weights extension stripped.
func matchesName(dir, path, name string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	candidates := []string{rel, filepath.Base(path)}
	for _, c := range candidates {
		if c == name {
			return true
		}
		for _, ext := range weightsExtensions {
			if strings.TrimSuffix(c, ext) == name && strings.HasSuffix(c, ext) {
				return true
			}
		}
	}
	return false
}
