package metacache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *cacheStore {
	t.Helper()
	s, err := newCacheStore(Config{AppName: "testapp", DataDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("newCacheStore() error = %v", err)
	}
	return s
}

func TestEnvVarName(t *testing.T) {
	tests := []struct {
		appName string
		suffix  string
		want    string
	}{
		{"sagecache", "CACHE_DIR", "SAGECACHE_CACHE_DIR"},
		{"MyApp", "API_TOKEN", "MYAPP_API_TOKEN"},
	}

	for _, tt := range tests {
		if got := envVarName(tt.appName, tt.suffix); got != tt.want {
			t.Errorf("envVarName(%q, %q) = %q, want %q", tt.appName, tt.suffix, got, tt.want)
		}
	}
}

func TestNewCacheStoreWithEnvVar(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TESTENVAPP_CACHE_DIR", tmpDir)

	s, err := newCacheStore(Config{AppName: "testenvapp", DataDir: "/should/be/ignored"}, nil)
	if err != nil {
		t.Fatalf("newCacheStore() error = %v", err)
	}

	if s.baseDir != tmpDir {
		t.Errorf("baseDir = %q, want %q (env var should take priority)", s.baseDir, tmpDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)

	if len(s.paths) != 0 || len(s.records) != 0 {
		t.Errorf("expected empty store, got %d paths, %d records", len(s.paths), len(s.records))
	}
}

func TestLoadCorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, cacheFileName), []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := newCacheStore(Config{AppName: "testapp", DataDir: tmpDir}, nil)
	if err != nil {
		t.Fatalf("newCacheStore() should tolerate corrupt cache, got %v", err)
	}

	if len(s.paths) != 0 || len(s.records) != 0 {
		t.Error("corrupt cache should yield an empty store")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second) // Truncate for JSON round-trip
	rec := ArtifactRecord{
		RegistryKnown:   true,
		UpdateAvailable: true,
		ModelID:         42,
		VersionID:       101,
		ModelName:       "Ink Wash Style",
		VersionName:     "v2.0",
		ModelType:       "LORA",
		BaseModel:       "SDXL 1.0",
		TrainedWords:    []string{"ink wash", "sumi-e"},
		DownloadURL:     "https://example.com/api/download/models/101",
		FileHashes:      map[string]string{"SHA256": "abc", "AutoV2": "abc"},
		LastUsed:        now,
	}
	s.upsert("/models/loras/ink.safetensors", "hash-ink", rec)

	if err := s.save(); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	// Reload from disk into a fresh store over the same directory.
	s2, err := newCacheStore(Config{AppName: "testapp", DataDir: s.baseDir}, nil)
	if err != nil {
		t.Fatalf("newCacheStore() error = %v", err)
	}

	got := s2.getByPath("/models/loras/ink.safetensors")
	if got.Hash != "hash-ink" {
		t.Errorf("Hash = %q, want %q", got.Hash, "hash-ink")
	}
	if got.ModelName != "Ink Wash Style" {
		t.Errorf("ModelName = %q, want %q", got.ModelName, "Ink Wash Style")
	}
	if len(got.TrainedWords) != 2 {
		t.Errorf("len(TrainedWords) = %d, want 2", len(got.TrainedWords))
	}
	if got.FileHashes["AutoV2"] != "abc" {
		t.Errorf("FileHashes[AutoV2] = %q, want %q", got.FileHashes["AutoV2"], "abc")
	}
	if !got.LastUsed.Equal(now) {
		t.Errorf("LastUsed = %v, want %v", got.LastUsed, now)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	s := newTestStore(t)
	s.upsert("/a", "h1", ArtifactRecord{})

	if err := s.save(); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	if _, err := os.Stat(s.cacheFilePath() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after save")
	}
	if _, err := os.Stat(s.cacheFilePath()); err != nil {
		t.Errorf("cache file should exist after save: %v", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	s := newTestStore(t)

	// Every record whose save() returned nil must be present in the durable
	// file once all saves have finished: a slower writer must not rename an
	// older snapshot over a newer one.
	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash := fmt.Sprintf("h-%d", i)
			path := fmt.Sprintf("/models/%d.safetensors", i)
			s.upsert(path, hash, ArtifactRecord{ModelName: fmt.Sprintf("m%d", i)})
			errs[i] = s.save()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: save() error = %v", i, err)
		}
	}

	s2, err := newCacheStore(Config{AppName: "testapp", DataDir: s.baseDir}, nil)
	if err != nil {
		t.Fatalf("newCacheStore() error = %v", err)
	}
	for i := 0; i < writers; i++ {
		hash := fmt.Sprintf("h-%d", i)
		if got := s2.getByHash(hash).ModelName; got != fmt.Sprintf("m%d", i) {
			t.Errorf("record %s acknowledged by save() but missing from durable file", hash)
		}
	}
}

func TestGetByPathDefault(t *testing.T) {
	s := newTestStore(t)

	rec := s.getByPath("/never/seen")
	if rec.Hash != "" || rec.RegistryKnown {
		t.Errorf("expected zero record, got %+v", rec)
	}
}

func TestGetByHashDefault(t *testing.T) {
	s := newTestStore(t)

	rec := s.getByHash("h-unknown")
	if rec.Hash != "h-unknown" {
		t.Errorf("default record should carry the hash, got %q", rec.Hash)
	}
	if rec.RegistryKnown || rec.UpdateAvailable {
		t.Errorf("default record should be empty, got %+v", rec)
	}
}

func TestUpsertUpdatesBothIndices(t *testing.T) {
	s := newTestStore(t)

	s.upsert("/a", "h1", ArtifactRecord{ModelName: "one"})

	if s.hashForPath("/a") != "h1" {
		t.Error("path index not updated")
	}
	if s.getByHash("h1").ModelName != "one" {
		t.Error("hash index not updated")
	}

	// Rebinding the path to new content overwrites the entry and keeps
	// the old record addressable by hash.
	s.upsert("/a", "h2", ArtifactRecord{ModelName: "two"})

	if s.hashForPath("/a") != "h2" {
		t.Error("path index should point at the new hash")
	}
	if s.getByHash("h1").ModelName != "one" {
		t.Error("old record should survive a path rebind")
	}
}

func TestUpsertOverridesRecordHash(t *testing.T) {
	s := newTestStore(t)

	// The record's Hash field cannot disagree with its index key.
	s.upsert("/a", "h1", ArtifactRecord{Hash: "something-else"})

	if got := s.getByHash("h1").Hash; got != "h1" {
		t.Errorf("record hash = %q, want %q", got, "h1")
	}
}

func TestEnsureCreatesDefaultRecord(t *testing.T) {
	s := newTestStore(t)

	s.ensure("/a", "h1")

	if s.hashForPath("/a") != "h1" {
		t.Error("path entry not created")
	}
	if _, ok := s.records["h1"]; !ok {
		t.Error("default record not created")
	}

	// A second ensure must not clobber an existing record.
	s.upsert("/a", "h1", ArtifactRecord{ModelName: "kept"})
	s.ensure("/a", "h1")
	if s.getByHash("h1").ModelName != "kept" {
		t.Error("ensure should not overwrite an existing record")
	}
}

func TestLoadRepairsMissingRecords(t *testing.T) {
	tmpDir := t.TempDir()
	data := `{"paths": {"/a": "h-orphan"}, "records": {}}`
	if err := os.WriteFile(filepath.Join(tmpDir, cacheFileName), []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := newCacheStore(Config{AppName: "testapp", DataDir: tmpDir}, nil)
	if err != nil {
		t.Fatalf("newCacheStore() error = %v", err)
	}

	if _, ok := s.records["h-orphan"]; !ok {
		t.Error("load should create a default record for orphaned path hashes")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore(t)
	s.upsert("/a", "h1", ArtifactRecord{TrainedWords: []string{"w"}})

	paths, records := s.snapshot()
	paths["/b"] = "h2"
	rec := records["h1"]
	rec.TrainedWords[0] = "mutated"

	if s.hashForPath("/b") != "" {
		t.Error("snapshot paths should be a copy")
	}
	if s.getByHash("h1").TrainedWords[0] != "w" {
		t.Error("snapshot records should be deep copies")
	}
}
