package metacache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// VersionPayload is the registry's description of one model version, as
// returned by the by-hash and by-version-id lookups.
type VersionPayload struct {
	// ID is the version identifier.
	ID int64 `json:"id"`

	// ModelID is the identifier of the parent model.
	ModelID int64 `json:"modelId"`

	// Name is the version's display name.
	Name string `json:"name"`

	// BaseModel is the base model family (e.g. "SDXL 1.0", "Flux.1 D").
	BaseModel string `json:"baseModel"`

	// TrainedWords are trigger keywords, in registry order. May be empty.
	TrainedWords []string `json:"trainedWords"`

	// DownloadURL is the version-level download location.
	DownloadURL string `json:"downloadUrl"`

	// Files lists the version's files; only the first is consumed.
	Files []VersionFile `json:"files"`

	// Model is the embedded descriptor of the parent model.
	Model ModelDescriptor `json:"model"`
}

// VersionFile is one file entry within a version payload.
type VersionFile struct {
	// Name is the registry-side file name.
	Name string `json:"name"`

	// DownloadURL is the file-level download location.
	DownloadURL string `json:"downloadUrl"`

	// Hashes maps hash algorithm names to hex digests.
	Hashes map[string]string `json:"hashes"`
}

// ModelDescriptor is the model summary embedded in a version payload.
type ModelDescriptor struct {
	// Name is the model's canonical display name.
	Name string `json:"name"`

	// Type is the artifact category (e.g. "LORA", "Checkpoint").
	Type string `json:"type"`
}

// ModelPayload is the registry's description of a model, including its full
// version list, as returned by the by-model-id lookup.
type ModelPayload struct {
	// ID is the model identifier.
	ID int64 `json:"id"`

	// Name is the model's canonical display name.
	Name string `json:"name"`

	// Type is the artifact category.
	Type string `json:"type"`

	// Versions lists all versions of the model.
	Versions []ModelVersionEntry `json:"modelVersions"`
}

// ModelVersionEntry is one version summary within a model payload.
type ModelVersionEntry struct {
	// ID is the version identifier.
	ID int64 `json:"id"`

	// CreatedAt is the version's creation timestamp.
	CreatedAt time.Time `json:"createdAt"`

	// Status is the publication status (e.g. "Published", "Draft").
	Status string `json:"status"`

	// Availability is the visibility (e.g. "Public", "EarlyAccess").
	Availability string `json:"availability"`
}

// registryClient handles HTTP communication with the remote model registry.
// Every lookup converts transport failures into sentinel errors; nothing
// escapes this boundary as a panic or an untyped failure.
type registryClient struct {
	// baseURL is the base URL of the registry (e.g. "https://civitai.com").
	baseURL string

	// apiToken is sent as a bearer token when non-empty.
	apiToken string

	// httpClient is used for HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic messages. May be nil.
	logger Logger
}

// newRegistryClient creates a new registry client.
// The baseURL is normalized by removing any trailing slashes.
func newRegistryClient(baseURL, apiToken string, client HTTPClient, logger Logger) *registryClient {
	return &registryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   apiToken,
		httpClient: client,
		logger:     logger,
	}
}

// versionByHash looks up the model version matching a file content hash.
// Returns ErrNotFound when the registry has never seen this content.
func (r *registryClient) versionByHash(ctx context.Context, hash string) (VersionPayload, error) {
	var payload VersionPayload
	err := r.getJSON(ctx, "/api/v1/model-versions/by-hash/"+hash, &payload)
	if err != nil {
		return VersionPayload{}, fmt.Errorf("looking up hash %s: %w", ShortHash(hash), err)
	}
	return payload, nil
}

// versionByID looks up a model version by its registry identifier.
func (r *registryClient) versionByID(ctx context.Context, id int64) (VersionPayload, error) {
	var payload VersionPayload
	err := r.getJSON(ctx, "/api/v1/model-versions/"+strconv.FormatInt(id, 10), &payload)
	if err != nil {
		return VersionPayload{}, fmt.Errorf("looking up version %d: %w", id, err)
	}
	return payload, nil
}

// modelByID looks up a model, including its version list, by identifier.
func (r *registryClient) modelByID(ctx context.Context, id int64) (ModelPayload, error) {
	var payload ModelPayload
	err := r.getJSON(ctx, "/api/v1/models/"+strconv.FormatInt(id, 10), &payload)
	if err != nil {
		return ModelPayload{}, fmt.Errorf("looking up model %d: %w", id, err)
	}
	return payload, nil
}

// getJSON performs a GET request and decodes the JSON response into out.
func (r *registryClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if r.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrRegistryError)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", ErrRegistryError)
	}

	return nil
}

// firstFileHashes returns the hash map of the payload's first listed file,
// or an empty map when no files are listed. Missing payload fields default
// rather than failing the synchronization.
func (p VersionPayload) firstFileHashes() map[string]string {
	if len(p.Files) == 0 || p.Files[0].Hashes == nil {
		return map[string]string{}
	}
	hashes := make(map[string]string, len(p.Files[0].Hashes))
	for algo, digest := range p.Files[0].Hashes {
		hashes[algo] = digest
	}
	return hashes
}
