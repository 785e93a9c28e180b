package metacache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout is the default timeout for acquiring the cache file lock.
const DefaultLockTimeout = 30 * time.Second

// cacheFileName is the durable cache file within the data directory.
const cacheFileName = "metadata.json"

// cacheFile is the on-disk representation of the two indices.
type cacheFile struct {
	// Paths maps absolute file paths to content hashes.
	Paths map[string]string `json:"paths"`

	// Records maps content hashes to metadata records.
	Records map[string]*ArtifactRecord `json:"records"`
}

// cacheStore holds the path and hash indices in memory and persists them to
// a single JSON file. The two indices are always updated together: every
// path entry's hash has a corresponding record.
type cacheStore struct {
	// baseDir is the directory containing the cache file.
	baseDir string

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// lockTimeout is the maximum duration to wait for the cross-process
	// file lock during save.
	lockTimeout time.Duration

	// mu protects the in-memory indices.
	mu sync.RWMutex

	// saveMu is held across marshal and write so snapshots reach the disk
	// in the order they were taken.
	saveMu sync.Mutex

	// paths maps absolute file paths to content hashes.
	paths map[string]string

	// records maps content hashes to metadata records.
	records map[string]*ArtifactRecord
}

// envVarName constructs an environment variable name from the app name.
// Example: envVarName("sagecache", "CACHE_DIR") returns "SAGECACHE_CACHE_DIR".
func envVarName(appName, suffix string) string {
	return strings.ToUpper(appName) + "_" + suffix
}

// newCacheStore creates a store for the given configuration and loads the
// durable cache file if one exists.
func newCacheStore(cfg Config, logger Logger) (*cacheStore, error) {
	var baseDir string

	// Priority: env var > Config.DataDir > platform default
	if envDir := os.Getenv(envVarName(cfg.AppName, "CACHE_DIR")); envDir != "" {
		baseDir = envDir
	} else if cfg.DataDir != "" {
		baseDir = cfg.DataDir
	} else {
		defaultDir, err := getDefaultDataDir(cfg.AppName)
		if err != nil {
			return nil, fmt.Errorf("failed to get default data dir: %w", err)
		}
		baseDir = defaultDir
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create cache directory: %v", ErrStorageError, err)
	}

	s := &cacheStore{
		baseDir:     baseDir,
		logger:      logger,
		lockTimeout: DefaultLockTimeout,
		paths:       make(map[string]string),
		records:     make(map[string]*ArtifactRecord),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// cacheFilePath returns the absolute path of the durable cache file.
func (s *cacheStore) cacheFilePath() string {
	return filepath.Join(s.baseDir, cacheFileName)
}

// load reads the durable cache file into memory. Idempotent: safe to call
// repeatedly. A missing file yields an empty store. A corrupt file also
// yields an empty store, with a warning, so a damaged cache never blocks
// the host; the metadata is re-fetchable.
func (s *cacheStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paths = make(map[string]string)
	s.records = make(map[string]*ArtifactRecord)

	data, err := os.ReadFile(s.cacheFilePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		if s.logger != nil {
			s.logger.Warn("cache file is corrupt, starting empty", "path", s.cacheFilePath(), "error", err)
		}
		return nil
	}

	if cf.Paths != nil {
		s.paths = cf.Paths
	}
	if cf.Records != nil {
		s.records = cf.Records
	}

	// Repair the cross-index invariant for caches written by older builds:
	// a path whose hash has no record gets a default one.
	for _, hash := range s.paths {
		if _, ok := s.records[hash]; !ok {
			s.records[hash] = &ArtifactRecord{Hash: hash}
		}
	}

	return nil
}

// save atomically writes the cache file: marshal, write to a temporary file,
// rename. saveMu serializes writers in this process, spanning both the
// snapshot and the write; a cross-process flock serializes writers from other
// processes. When save returns nil, the state at the time of the call is on
// disk or has been superseded by a later snapshot.
func (s *cacheStore) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	cf := cacheFile{Paths: s.paths, Records: s.records}
	data, err := json.MarshalIndent(cf, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: failed to marshal cache: %v", ErrStorageError, err)
	}

	unlock, err := s.acquireFileLock()
	if err != nil {
		return err
	}
	defer unlock()

	return s.atomicWrite(s.cacheFilePath(), data)
}

// acquireFileLock obtains the cross-process lock guarding the cache file,
// polling until lockTimeout expires.
func (s *cacheStore) acquireFileLock() (func(), error) {
	lockPath := s.cacheFilePath() + ".lock"
	l := flock.New(lockPath)
	deadline := time.Now().Add(s.lockTimeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to acquire lock: %v", ErrStorageError, err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: lock timeout after %v (lock: %s)", ErrStorageError, s.lockTimeout, lockPath)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// atomicWrite writes data to a file using write-then-rename for atomicity.
func (s *cacheStore) atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrStorageError, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write temp file: %v", ErrStorageError, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // cleanup on failure
		return fmt.Errorf("%w: failed to rename temp file: %v", ErrStorageError, err)
	}

	return nil
}

// hashForPath returns the cached content hash for a path, or "" when the
// path has never been hashed.
func (s *cacheStore) hashForPath(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paths[path]
}

// getByPath returns a copy of the record for a path's cached hash. Returns
// a zero-valued record when the path is unknown, so callers can read fields
// with defaults without branching.
func (s *cacheStore) getByPath(path string) ArtifactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.paths[path]
	if !ok {
		return ArtifactRecord{}
	}
	return s.recordCopy(hash)
}

// getByHash returns a copy of the record for a hash. Returns a default
// record carrying the hash when no entry exists.
func (s *cacheStore) getByHash(hash string) ArtifactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordCopy(hash)
}

// recordCopy returns a defensive copy of a record. Callers must hold mu.
func (s *cacheStore) recordCopy(hash string) ArtifactRecord {
	rec, ok := s.records[hash]
	if !ok {
		return ArtifactRecord{Hash: hash}
	}

	out := *rec
	if rec.TrainedWords != nil {
		out.TrainedWords = append([]string(nil), rec.TrainedWords...)
	}
	if rec.FileHashes != nil {
		out.FileHashes = make(map[string]string, len(rec.FileHashes))
		for k, v := range rec.FileHashes {
			out.FileHashes[k] = v
		}
	}
	return out
}

// upsert updates both indices together: the path entry points at hash, and
// the record is stored under hash. rec.Hash is overwritten with hash so the
// indices cannot drift apart.
func (s *cacheStore) upsert(path, hash string, rec ArtifactRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Hash = hash
	s.paths[path] = hash
	s.records[hash] = &rec
}

// ensure creates the path entry and a default record for hash if either is
// missing. Existing records are left untouched.
func (s *cacheStore) ensure(path, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paths[path] = hash
	if _, ok := s.records[hash]; !ok {
		s.records[hash] = &ArtifactRecord{Hash: hash}
	}
}

// snapshot returns a copy of the path index and all records, for listing.
func (s *cacheStore) snapshot() (map[string]string, map[string]ArtifactRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make(map[string]string, len(s.paths))
	for p, h := range s.paths {
		paths[p] = h
	}
	records := make(map[string]ArtifactRecord, len(s.records))
	for h := range s.records {
		records[h] = s.recordCopy(h)
	}
	return paths, records
}
