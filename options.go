package metacache

import (
	"net/http"
	"time"
)

// Download and request tuning constants.
const (
	// DefaultConcurrency is the default number of concurrent artifact
	// downloads in a Fetch call.
	DefaultConcurrency = 2

	// MaxConcurrency is the maximum allowed concurrent downloads.
	MaxConcurrency = 8

	// DefaultRequestTimeout bounds registry HTTP requests.
	DefaultRequestTimeout = 30 * time.Second
)

// Staleness policy constants.
const (
	// rehashWindowDays is the maximum age, in days since last use, within
	// which a failed lookup triggers re-hashing the file to detect content
	// changes before retrying.
	rehashWindowDays = 30
)

// SyncOption configures a Synchronize call.
type SyncOption func(*syncConfig)

// syncConfig holds configuration for one synchronization.
type syncConfig struct {
	// force always runs the registry lookup chain, ignoring staleness.
	force bool

	// touch updates the record's LastUsed timestamp.
	touch bool
}

// newSyncConfig returns a syncConfig with default values.
func newSyncConfig() *syncConfig {
	return &syncConfig{touch: true}
}

// WithForce forces a registry lookup even if cached metadata is fresh.
func WithForce() SyncOption {
	return func(c *syncConfig) {
		c.force = true
	}
}

// WithoutTouch leaves the record's LastUsed timestamp unchanged. By default
// every synchronization counts as a use.
func WithoutTouch() SyncOption {
	return func(c *syncConfig) {
		c.touch = false
	}
}

// FetchOption configures a Fetch (artifact download) operation.
type FetchOption func(*fetchConfig)

// fetchConfig holds configuration for a fetch operation.
type fetchConfig struct {
	// concurrency is the number of concurrent artifact downloads.
	concurrency int

	// progressFn is called with progress updates during download.
	progressFn func(FetchProgress)
}

// newFetchConfig returns a fetchConfig with default values.
func newFetchConfig() *fetchConfig {
	return &fetchConfig{concurrency: DefaultConcurrency}
}

// WithConcurrency sets the number of concurrent artifact downloads.
// Values are clamped to the range [1, MaxConcurrency].
func WithConcurrency(n int) FetchOption {
	return func(c *fetchConfig) {
		if n < 1 {
			n = 1
		}
		if n > MaxConcurrency {
			n = MaxConcurrency
		}
		c.concurrency = n
	}
}

// WithProgress sets a callback for progress updates during download.
// The callback is invoked from download worker goroutines and must be
// thread-safe.
func WithProgress(fn func(FetchProgress)) FetchOption {
	return func(c *fetchConfig) {
		c.progressFn = fn
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// managerConfig holds configuration for Manager construction.
type managerConfig struct {
	// httpClient is used for all HTTP requests to the registry.
	httpClient HTTPClient

	// logger receives diagnostic log messages.
	logger Logger

	// resolver maps artifact names to file paths.
	resolver PathResolver
}

// newManagerConfig returns a managerConfig with default values.
func newManagerConfig() *managerConfig {
	return &managerConfig{
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
	}
}

// WithHTTPClient sets a custom HTTP client for registry requests.
// Useful for testing with mock servers or customizing timeouts.
// If not set, a client with DefaultRequestTimeout is used.
func WithHTTPClient(client HTTPClient) ManagerOption {
	return func(c *managerConfig) {
		c.httpClient = client
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithPathResolver sets a custom artifact name resolver. If not set, names
// are resolved by scanning Config.ModelDirs.
func WithPathResolver(r PathResolver) ManagerOption {
	return func(c *managerConfig) {
		c.resolver = r
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}
