package metacache

import (
	"strconv"
	"strings"
	"time"
)

// Config configures the metadata cache module.
type Config struct {
	// AppName determines the cache directory name and the environment
	// variable prefix. Example: "sagecache" → ~/.local/share/sagecache/cache/
	AppName string `yaml:"app_name"`

	// RegistryURL is the base URL of the model registry.
	// Example: "https://civitai.com"
	RegistryURL string `yaml:"registry_url"`

	// DataDir overrides the default cache directory.
	// If empty, uses platform-appropriate default.
	// Can also be set via environment variable: <APPNAME>_CACHE_DIR
	DataDir string `yaml:"data_dir,omitempty"`

	// APIToken is sent as a bearer token on registry requests when set.
	// Some registries rate-limit or hide content from anonymous clients.
	// Can also be set via environment variable: <APPNAME>_API_TOKEN
	APIToken string `yaml:"api_token,omitempty"`

	// ModelDirs maps an artifact category (e.g. "loras", "checkpoints") to
	// the directories scanned when resolving artifact names to paths.
	ModelDirs map[string][]string `yaml:"model_dirs,omitempty"`
}

// ArtifactRecord is the cached metadata for one distinct file content,
// keyed by the full SHA-256 digest of the file.
type ArtifactRecord struct {
	// Hash is the lowercase hex SHA-256 digest of the file contents.
	// This is the record's stable identity.
	Hash string `json:"hash"`

	// RegistryKnown reports whether the registry has matched this content.
	// False either means "never looked up" or "lookup failed"; the two are
	// indistinguishable on purpose, the next sync retries either way.
	RegistryKnown bool `json:"registry_known"`

	// UpdateAvailable is true when a newer published version of the same
	// model exists in the registry.
	UpdateAvailable bool `json:"update_available"`

	// ModelID and VersionID are registry identifiers. Zero when unknown.
	ModelID   int64 `json:"model_id,omitempty"`
	VersionID int64 `json:"version_id,omitempty"`

	// ModelName, VersionName, ModelType and BaseModel are descriptive
	// strings as reported by the registry.
	ModelName   string `json:"model_name,omitempty"`
	VersionName string `json:"version_name,omitempty"`
	ModelType   string `json:"model_type,omitempty"`
	BaseModel   string `json:"base_model,omitempty"`

	// TrainedWords are the trigger keywords associated with the artifact,
	// in registry order. May be empty.
	TrainedWords []string `json:"trained_words,omitempty"`

	// DownloadURL is the registry download location for the matched file.
	DownloadURL string `json:"download_url,omitempty"`

	// FileHashes maps hash algorithm names (e.g. "SHA256", "AutoV2") to
	// hex digests as reported by the registry for the matched file.
	FileHashes map[string]string `json:"file_hashes,omitempty"`

	// LastUsed is the timestamp of the last access or refresh, used for
	// staleness decisions.
	LastUsed time.Time `json:"last_used"`
}

// LoraRef references a LoRA artifact by name with its merge strengths.
type LoraRef struct {
	// Name is the logical artifact name, without directory or extension.
	Name string

	// ModelWeight is the strength applied to the base model merge.
	ModelWeight float64

	// ClipWeight is the strength applied to the text-encoder merge.
	ClipWeight float64
}

// String returns the canonical string form: "name:model_weight:clip_weight".
func (r LoraRef) String() string {
	return r.Name + ":" +
		strconv.FormatFloat(r.ModelWeight, 'g', -1, 64) + ":" +
		strconv.FormatFloat(r.ClipWeight, 'g', -1, 64)
}

// ParseLoraRef parses "name", "name:weight" or "name:model_weight:clip_weight"
// into a LoraRef. Omitted weights default to 1. A single weight applies to
// both merges. Returns ErrInvalidRef if the format is invalid.
func ParseLoraRef(s string) (LoraRef, error) {
	if s == "" {
		return LoraRef{}, ErrInvalidRef
	}

	parts := strings.Split(s, ":")
	ref := LoraRef{Name: parts[0], ModelWeight: 1, ClipWeight: 1}
	if ref.Name == "" {
		return LoraRef{}, ErrInvalidRef
	}

	if len(parts) > 3 {
		return LoraRef{}, ErrInvalidRef
	}

	if len(parts) >= 2 {
		w, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return LoraRef{}, ErrInvalidRef
		}
		ref.ModelWeight = w
		ref.ClipWeight = w
	}

	if len(parts) == 3 {
		w, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return LoraRef{}, ErrInvalidRef
		}
		ref.ClipWeight = w
	}

	return ref, nil
}

// LoraStack is an ordered sequence of LoRA references. Duplicate names are
// structurally allowed; keyword aggregation deduplicates them.
type LoraStack []LoraRef

// PathResolver resolves a logical artifact name to an absolute file path.
// Implemented by the built-in directory scanner (see Config.ModelDirs) or by
// a host that owns its own model path table.
type PathResolver interface {
	// Resolve returns the absolute path for an artifact name.
	// Returns ErrNotResolved if no matching file exists.
	Resolve(name string) (string, error)
}
