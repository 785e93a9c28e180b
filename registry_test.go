package metacache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const versionPayloadJSON = `{
	"id": 101,
	"modelId": 42,
	"name": "v2.0",
	"baseModel": "SDXL 1.0",
	"trainedWords": ["ink wash", "sumi-e"],
	"downloadUrl": "https://example.com/api/download/models/101",
	"files": [
		{
			"name": "ink_wash_v2.safetensors",
			"downloadUrl": "https://example.com/api/download/models/101?type=Model",
			"hashes": {"SHA256": "aabbcc", "AutoV2": "aabbcc0011"}
		},
		{
			"name": "ink_wash_v2.yaml",
			"hashes": {"SHA256": "other"}
		}
	],
	"model": {"name": "Ink Wash Style", "type": "LORA"}
}`

func TestVersionByHash(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/model-versions/by-hash/aabbcc" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(versionPayloadJSON))
		}))
		defer server.Close()

		client := newRegistryClient(server.URL, "", server.Client(), nil)
		payload, err := client.versionByHash(context.Background(), "aabbcc")
		if err != nil {
			t.Fatalf("versionByHash() error = %v", err)
		}

		if payload.ID != 101 {
			t.Errorf("ID = %d, want 101", payload.ID)
		}
		if payload.ModelID != 42 {
			t.Errorf("ModelID = %d, want 42", payload.ModelID)
		}
		if payload.BaseModel != "SDXL 1.0" {
			t.Errorf("BaseModel = %q, want %q", payload.BaseModel, "SDXL 1.0")
		}
		if len(payload.TrainedWords) != 2 || payload.TrainedWords[0] != "ink wash" {
			t.Errorf("TrainedWords = %v", payload.TrainedWords)
		}
		if payload.Model.Name != "Ink Wash Style" || payload.Model.Type != "LORA" {
			t.Errorf("Model = %+v", payload.Model)
		}
	})

	t.Run("404 returns ErrNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newRegistryClient(server.URL, "", server.Client(), nil)
		_, err := client.versionByHash(context.Background(), "ffff")

		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("network error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		client := newRegistryClient(server.URL, "", server.Client(), nil)
		_, err := client.versionByHash(context.Background(), "aabbcc")

		if !errors.Is(err, ErrNetworkError) {
			t.Errorf("expected ErrNetworkError, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newRegistryClient(server.URL, "", server.Client(), nil)
		_, err := client.versionByHash(context.Background(), "aabbcc")

		if !errors.Is(err, ErrRegistryError) {
			t.Errorf("expected ErrRegistryError, got %v", err)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{invalid json`))
		}))
		defer server.Close()

		client := newRegistryClient(server.URL, "", server.Client(), nil)
		_, err := client.versionByHash(context.Background(), "aabbcc")

		if !errors.Is(err, ErrRegistryError) {
			t.Errorf("expected ErrRegistryError, got %v", err)
		}
	})
}

func TestVersionByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/model-versions/101" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(versionPayloadJSON))
	}))
	defer server.Close()

	client := newRegistryClient(server.URL, "", server.Client(), nil)
	payload, err := client.versionByID(context.Background(), 101)
	if err != nil {
		t.Fatalf("versionByID() error = %v", err)
	}
	if payload.ID != 101 {
		t.Errorf("ID = %d, want 101", payload.ID)
	}
}

func TestModelByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/models/42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": 42,
			"name": "Ink Wash Style",
			"type": "LORA",
			"modelVersions": [
				{"id": 102, "createdAt": "2024-06-01T00:00:00Z", "status": "Published", "availability": "Public"},
				{"id": 101, "createdAt": "2024-01-01T00:00:00Z", "status": "Published", "availability": "Public"}
			]
		}`))
	}))
	defer server.Close()

	client := newRegistryClient(server.URL, "", server.Client(), nil)
	payload, err := client.modelByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("modelByID() error = %v", err)
	}
	if payload.ID != 42 {
		t.Errorf("ID = %d, want 42", payload.ID)
	}
	if len(payload.Versions) != 2 {
		t.Fatalf("len(Versions) = %d, want 2", len(payload.Versions))
	}
	if payload.Versions[0].Status != "Published" || payload.Versions[0].Availability != "Public" {
		t.Errorf("Versions[0] = %+v", payload.Versions[0])
	}
}

func TestRegistryAPIToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sekrit")
		}
		w.Write([]byte(versionPayloadJSON))
	}))
	defer server.Close()

	client := newRegistryClient(server.URL, "sekrit", server.Client(), nil)
	if _, err := client.versionByHash(context.Background(), "aabbcc"); err != nil {
		t.Fatalf("versionByHash() error = %v", err)
	}
}

func TestFirstFileHashes(t *testing.T) {
	t.Run("first file only", func(t *testing.T) {
		p := VersionPayload{Files: []VersionFile{
			{Hashes: map[string]string{"SHA256": "first"}},
			{Hashes: map[string]string{"SHA256": "second"}},
		}}

		hashes := p.firstFileHashes()
		if hashes["SHA256"] != "first" {
			t.Errorf("SHA256 = %q, want %q", hashes["SHA256"], "first")
		}
	})

	t.Run("no files defaults to empty map", func(t *testing.T) {
		p := VersionPayload{}
		hashes := p.firstFileHashes()
		if hashes == nil {
			t.Fatal("expected non-nil map")
		}
		if len(hashes) != 0 {
			t.Errorf("expected empty map, got %v", hashes)
		}
	})

	t.Run("nil hashes defaults to empty map", func(t *testing.T) {
		p := VersionPayload{Files: []VersionFile{{Name: "f"}}}
		if hashes := p.firstFileHashes(); hashes == nil || len(hashes) != 0 {
			t.Errorf("expected empty map, got %v", hashes)
		}
	})
}

func TestRegistryClientWithContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(versionPayloadJSON))
	}))
	defer server.Close()

	client := newRegistryClient(server.URL, "", server.Client(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	if _, err := client.versionByHash(ctx, "aabbcc"); err == nil {
		t.Error("expected error with cancelled context")
	}
}
