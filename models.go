package metacache

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedArtifact pairs a local path with its cached metadata record, for
// listing. Multiple paths may share one record.
type CachedArtifact struct {
	// Path is the absolute local file path.
	Path string `json:"path"`

	// Record is the metadata record for the path's content.
	Record ArtifactRecord `json:"record"`
}

// Manager provides programmatic access to the metadata cache.
// All methods are safe for concurrent use.
// For CLI integration, use NewCommand instead.
type Manager interface {
	// Synchronize ensures the metadata record for the artifact at path is
	// fresh and returns it. Registry failures degrade the record to an
	// unknown state instead of failing; only local file and storage errors
	// are returned.
	Synchronize(ctx context.Context, path string, opts ...SyncOption) (ArtifactRecord, error)

	// CachedHash returns the content hash for path, computing and
	// persisting it on first sight.
	CachedHash(path string) (string, error)

	// Record returns the cached record for path without any network or
	// hashing work. Zero-valued when the path was never synchronized.
	Record(path string) ArtifactRecord

	// KeywordsForStack collects deduplicated trigger keywords for a LoRA
	// stack, synchronizing each referenced artifact first.
	KeywordsForStack(ctx context.Context, stack LoraStack) (string, error)

	// KeywordsForLora is the single-reference form of KeywordsForStack.
	KeywordsForLora(ctx context.Context, ref LoraRef) (string, error)

	// ResolvePath maps a logical artifact name to an absolute file path.
	// Returns ErrNotResolved when no matching file exists.
	ResolvePath(name string) (string, error)

	// List returns every cached path with its record, sorted by path.
	List() []CachedArtifact

	// Fetch downloads the artifacts recorded for the given paths into
	// destDir, verifying each against its recorded content hash.
	Fetch(ctx context.Context, paths []string, destDir string, opts ...FetchOption) error
}

// manager is the concrete implementation of the Manager interface.
type manager struct {
	// cfg holds the module configuration.
	cfg Config

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// store holds the path and hash indices and the durable cache file.
	store *cacheStore

	// registry handles remote registry communication.
	registry *registryClient

	// resolver maps artifact names to file paths.
	resolver PathResolver

	// hashGroup collapses concurrent first-time hashing per path.
	hashGroup singleflight.Group

	// syncGroup collapses concurrent synchronization per hash.
	syncGroup singleflight.Group

	// now returns the current time; replaced in tests.
	now func() time.Time
}

// Ensure manager implements Manager interface.
var _ Manager = (*manager)(nil)

// NewManager creates a new Manager with the given configuration.
// Returns an error if the configuration is invalid (empty AppName or
// RegistryURL) or the cache directory cannot be initialized.
func NewManager(cfg Config, opts ...ManagerOption) (Manager, error) {
	if cfg.AppName == "" {
		return nil, errors.New("metacache: AppName is required")
	}
	if cfg.RegistryURL == "" {
		return nil, errors.New("metacache: RegistryURL is required")
	}

	mcfg := newManagerConfig()
	for _, opt := range opts {
		opt(mcfg)
	}

	store, err := newCacheStore(cfg, mcfg.logger)
	if err != nil {
		return nil, err
	}

	resolver := mcfg.resolver
	if resolver == nil {
		resolver = newDirResolver(cfg.ModelDirs)
	}

	return &manager{
		cfg:      cfg,
		logger:   mcfg.logger,
		store:    store,
		registry: newRegistryClient(cfg.RegistryURL, cfg.APIToken, mcfg.httpClient, mcfg.logger),
		resolver: resolver,
		now:      time.Now,
	}, nil
}

// ResolvePath maps a logical artifact name to an absolute file path.
func (m *manager) ResolvePath(name string) (string, error) {
	return m.resolver.Resolve(name)
}

// List returns every cached path with its record, sorted by path.
func (m *manager) List() []CachedArtifact {
	paths, records := m.store.snapshot()

	out := make([]CachedArtifact, 0, len(paths))
	for path, hash := range paths {
		out = append(out, CachedArtifact{Path: path, Record: records[hash]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out
}
