// Package metacache maintains a persistent, content-hash-addressed metadata
// cache for local model artifacts (checkpoints, LoRAs, VAEs, text encoders)
// enriched from a Civitai-compatible model registry.
//
// The package serves two primary use cases:
//
//  1. Programmatic API via the Manager interface - Applications can use
//     NewManager to create a Manager that synchronizes artifact metadata,
//     aggregates LoRA trigger keywords, and downloads artifacts.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach a complete
//     "metadata" subcommand tree to their Cobra root command, providing
//     commands like "mytool metadata sync", "mytool metadata keywords", etc.
//
// # Identity
//
// An artifact's identity is the full SHA-256 digest of its file contents,
// lowercase hex. The cache keeps two cross-referenced indices: path to hash,
// and hash to metadata record. Multiple paths may share one record when their
// contents are identical. Truncated hashes (the 10-character AutoV2 form) are
// used for display only, never as index keys.
//
// # Staleness
//
// Every Synchronize call decides whether cached registry metadata is still
// trustworthy. A record refreshed today for a file that has not been modified
// since its last use skips the network entirely. A file modified after its
// last recorded use forces a registry lookup. Failed lookups degrade the
// record to an "unknown to registry" state rather than failing the caller.
//
// # Thread Safety
//
// The Manager interface is fully thread-safe. Concurrent Synchronize calls
// for the same content are collapsed so only one performs the network chain.
//
// # Storage
//
// The cache file lives in a platform-appropriate directory:
//   - Linux: $XDG_DATA_HOME/<app>/cache/ or ~/.local/share/<app>/cache/
//   - macOS: ~/Library/Application Support/<app>/cache/
//   - Windows: %APPDATA%\<app>\cache\
//
// The location can be overridden via Config.DataDir or the
// <APPNAME>_CACHE_DIR environment variable.
package metacache
