package metacache

import "errors"

// Sentinel errors for metadata cache operations.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrNotFound indicates the registry has no entry for the requested
	// hash, version id, or model id.
	ErrNotFound = errors.New("metacache: not found in registry")

	// ErrNetworkError indicates a network or connection failure.
	ErrNetworkError = errors.New("metacache: network error")

	// ErrRegistryError indicates the registry returned an unexpected status
	// or an unparseable payload.
	ErrRegistryError = errors.New("metacache: invalid registry response")

	// ErrStorageError indicates a cache file operation failed.
	ErrStorageError = errors.New("metacache: storage error")

	// ErrFileError indicates a local artifact file could not be read.
	// Hashing cannot be defaulted, so this is fatal for the operation.
	ErrFileError = errors.New("metacache: artifact file error")

	// ErrNotResolved indicates an artifact name could not be resolved to
	// a local file path.
	ErrNotResolved = errors.New("metacache: artifact not found in model directories")

	// ErrHashMismatch indicates downloaded data failed hash verification.
	ErrHashMismatch = errors.New("metacache: hash verification failed")

	// ErrNoDownloadURL indicates the record has no download URL; the
	// registry never matched this artifact, or the payload omitted one.
	ErrNoDownloadURL = errors.New("metacache: record has no download URL")

	// ErrInvalidRef indicates an invalid LoRA reference format.
	ErrInvalidRef = errors.New("metacache: invalid lora reference")
)
