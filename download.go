package metacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// FetchProgress reports download progress during a Fetch operation.
type FetchProgress struct {
	// Path is the artifact whose download this update describes.
	Path string

	// BytesTotal is the expected size of the current download, or 0 when
	// the server did not report one.
	BytesTotal int64

	// BytesReceived is the bytes received so far for the current download.
	BytesReceived int64

	// Completed is the number of artifacts fully downloaded.
	Completed int

	// Total is the number of artifacts in this fetch.
	Total int
}

// fetchJob is a unit of work for the download worker pool.
type fetchJob struct {
	// path is the cached artifact path identifying the record.
	path string

	// rec is the record carrying the download URL and expected hash.
	rec ArtifactRecord
}

// Fetch downloads the artifacts recorded for the given paths into destDir.
// Each download streams to a temporary file, is verified against the
// record's content hash, and is renamed into place; a partial or corrupt
// download never lands under its final name.
//
// Records without a download URL fail the fetch up front with
// ErrNoDownloadURL: synchronize first so the registry can supply one.
func (m *manager) Fetch(ctx context.Context, paths []string, destDir string, opts ...FetchOption) error {
	cfg := newFetchConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if len(paths) == 0 {
		return nil
	}

	// Validate every record before any network work.
	jobs := make([]fetchJob, 0, len(paths))
	for _, path := range paths {
		rec := m.store.getByPath(path)
		if rec.DownloadURL == "" {
			return fmt.Errorf("%w: %s", ErrNoDownloadURL, path)
		}
		jobs = append(jobs, fetchJob{path: path, rec: rec})
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("%w: creating destination: %v", ErrStorageError, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobCh := make(chan fetchJob, len(jobs))
	errCh := make(chan error, len(jobs))
	var completed int64

	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job, ok := <-jobCh:
					if !ok {
						return
					}
					err := m.fetchArtifact(ctx, job, destDir, cfg, int(atomic.LoadInt64(&completed)), len(jobs))
					if err != nil {
						errCh <- err
						cancel()
						return
					}
					done := atomic.AddInt64(&completed, 1)
					if cfg.progressFn != nil {
						cfg.progressFn(FetchProgress{
							Path:      job.path,
							Completed: int(done),
							Total:     len(jobs),
						})
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// fetchArtifact downloads one artifact, hashing as it streams.
func (m *manager) fetchArtifact(ctx context.Context, job fetchJob, destDir string, cfg *fetchConfig, completed, total int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.rec.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if m.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIToken)
	}

	resp, err := m.registry.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w: %v", job.path, ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: status %d: %w", job.path, resp.StatusCode, ErrRegistryError)
	}

	dest := filepath.Join(destDir, filepath.Base(job.path))
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorageError, tmp, err)
	}

	var received int64
	reader := &progressReader{
		reader: resp.Body,
		onProgress: func(delta int64) {
			received += delta
			if cfg.progressFn != nil {
				cfg.progressFn(FetchProgress{
					Path:          job.path,
					BytesTotal:    resp.ContentLength,
					BytesReceived: received,
					Completed:     completed,
					Total:         total,
				})
			}
		},
	}

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, h), reader)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("downloading %s: %w: %v", job.path, ErrNetworkError, err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: writing %s: %v", ErrStorageError, tmp, closeErr)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if actual != job.rec.Hash {
		os.Remove(tmp)
		return fmt.Errorf("%s: %w: got %s, want %s", job.path, ErrHashMismatch, ShortHash(actual), ShortHash(job.rec.Hash))
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: renaming %s: %v", ErrStorageError, tmp, err)
	}

	if m.logger != nil {
		m.logger.Info("artifact downloaded", "path", job.path, "dest", dest, "hash", ShortHash(job.rec.Hash))
	}

	return nil
}

// progressReader wraps an io.Reader and reports progress as bytes are read.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
