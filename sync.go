package metacache

import (
	"context"
	"errors"
	"os"
)

// Synchronize ensures the metadata record for the artifact at path is fresh,
// per the staleness policy, and returns it. This is the single authoritative
// entry point: callers must synchronize before trusting a record's registry
// fields.
//
// A failed registry lookup is not an error; the returned record simply has
// RegistryKnown=false. Only local file errors (unreadable artifact) and
// cache persistence failures are returned.
func (m *manager) Synchronize(ctx context.Context, path string, opts ...SyncOption) (ArtifactRecord, error) {
	cfg := newSyncConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	hash, err := m.resolveHash(path)
	if err != nil {
		return ArtifactRecord{}, err
	}

	// Concurrent callers for the same content share one synchronization:
	// only the first performs the network fallback chain.
	v, err, _ := m.syncGroup.Do(hash, func() (any, error) {
		return m.synchronize(ctx, path, hash, cfg)
	})
	if err != nil {
		return ArtifactRecord{}, err
	}

	return v.(ArtifactRecord), nil
}

// CachedHash returns the content hash for path, computing and persisting it
// on first sight. Fails only if the file cannot be read.
func (m *manager) CachedHash(path string) (string, error) {
	if h := m.store.hashForPath(path); h != "" {
		return h, nil
	}

	hash, err := m.resolveHash(path)
	if err != nil {
		return "", err
	}

	m.store.ensure(path, hash)
	if err := m.store.save(); err != nil {
		return "", err
	}
	return hash, nil
}

// Record returns the cached record for path without contacting the registry.
// Returns a zero-valued record when the path has never been synchronized.
func (m *manager) Record(path string) ArtifactRecord {
	return m.store.getByPath(path)
}

// resolveHash returns the cached content hash for path, or computes it.
// Concurrent first-time hashing of the same path is collapsed.
func (m *manager) resolveHash(path string) (string, error) {
	if h := m.store.hashForPath(path); h != "" {
		return h, nil
	}

	v, err, _ := m.hashGroup.Do(path, func() (any, error) {
		return fileSHA256(path)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// synchronize runs the per-record state machine: staleness decision,
// registry lookup chain, write-back. It operates on one record and is
// serialized per hash by the caller.
func (m *manager) synchronize(ctx context.Context, path, hash string, cfg *syncConfig) (ArtifactRecord, error) {
	m.store.ensure(path, hash)
	rec := m.store.getByHash(hash)

	// A file modified after its last recorded use cannot be trusted to
	// still match its cached hash or metadata.
	modifiedSinceUse := false
	if info, err := os.Stat(path); err == nil && info.ModTime().After(rec.LastUsed) {
		modifiedSinceUse = true
	}
	forced := cfg.force || modifiedSinceUse

	daysSinceUse := int(m.now().Sub(rec.LastUsed).Hours() / 24)

	if !forced && rec.RegistryKnown && daysSinceUse <= 0 {
		// Refreshed today and unmodified: skip the network entirely.
		if m.logger != nil {
			m.logger.Debug("metadata fresh, skipping lookup", "path", path, "hash", ShortHash(hash))
		}
		if !cfg.touch {
			// Record unchanged, nothing to write back.
			return rec, nil
		}
	} else {
		if modifiedSinceUse && m.logger != nil {
			m.logger.Debug("file modified since last use", "path", path)
		}

		var err error
		hash, rec, err = m.refresh(ctx, path, hash, rec, cfg.force, daysSinceUse)
		if err != nil {
			return ArtifactRecord{}, err
		}
	}

	if cfg.touch {
		rec.LastUsed = m.now()
	}

	m.store.upsert(path, hash, rec)
	if err := m.store.save(); err != nil {
		return ArtifactRecord{}, err
	}

	return m.store.getByHash(hash), nil
}

// refresh runs the registry lookup chain for one record. It may re-hash the
// file and move the path index to a new hash when the content has changed.
// Registry failures degrade the record to unknown; only local file errors
// are returned.
func (m *manager) refresh(ctx context.Context, path, hash string, rec ArtifactRecord, force bool, daysSinceUse int) (string, ArtifactRecord, error) {
	payload, err := m.registry.versionByHash(ctx, hash)

	if err != nil || force {
		// The cached hash may be stale. Within the re-hash window (or when
		// forced) recompute it and retry the lookup under the new identity.
		if daysSinceUse <= rehashWindowDays || force {
			newHash, hashErr := fileSHA256(path)
			if hashErr != nil {
				return hash, rec, hashErr
			}
			if newHash != hash {
				if m.logger != nil {
					m.logger.Info("content changed, rebinding path",
						"path", path, "old", ShortHash(hash), "new", ShortHash(newHash))
				}
				hash = newHash
				m.store.ensure(path, hash)
				rec = m.store.getByHash(hash)
				payload, err = m.registry.versionByHash(ctx, hash)
			}
		}

		// Best-effort fallback: when the hash lookup fails but the model is
		// known from a previous sync, recover metadata from the model's
		// latest published version. This may describe a different version
		// than the local file content; documented degradation, not a match.
		if err != nil && rec.ModelID != 0 {
			if latestID, lerr := m.registry.latestPublishedVersion(ctx, rec.ModelID); lerr == nil && latestID != 0 {
				payload, err = m.registry.versionByID(ctx, latestID)
			}
		}
	}

	if err != nil {
		if !errors.Is(err, ErrNotFound) && m.logger != nil {
			m.logger.Warn("registry lookup failed", "path", path, "error", err)
		}
		rec.RegistryKnown = false
		rec.UpdateAvailable = false
		return hash, rec, nil
	}

	rec = m.applyPayload(ctx, rec, payload)
	return hash, rec, nil
}

// applyPayload writes a successful version payload into the record and
// computes the update flag against the model's latest published version.
func (m *manager) applyPayload(ctx context.Context, rec ArtifactRecord, payload VersionPayload) ArtifactRecord {
	rec.FileHashes = payload.firstFileHashes()

	if latestID, err := m.registry.latestPublishedVersion(ctx, payload.ModelID); err == nil && latestID != 0 {
		rec.UpdateAvailable = latestID != payload.ID
	}
	// A failed or empty resolution leaves UpdateAvailable as previously
	// computed.

	rec.ModelID = payload.ModelID
	rec.VersionID = payload.ID
	rec.ModelName = payload.Model.Name
	rec.ModelType = payload.Model.Type
	rec.VersionName = payload.Name
	rec.BaseModel = payload.BaseModel
	rec.TrainedWords = payload.TrainedWords
	rec.DownloadURL = payload.DownloadURL
	if rec.DownloadURL == "" && len(payload.Files) > 0 {
		rec.DownloadURL = payload.Files[0].DownloadURL
	}
	rec.RegistryKnown = true

	return rec
}
