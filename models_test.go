package metacache

import (
	"strings"
	"testing"
)

func TestNewManagerValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing app name", Config{RegistryURL: "https://example.com"}, "AppName"},
		{"missing registry url", Config{AppName: "testapp"}, "RegistryURL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}

func TestNewManagerDefaults(t *testing.T) {
	mgr, err := NewManager(Config{
		AppName:     "testapp",
		RegistryURL: "https://example.com/",
		DataDir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	m := mgr.(*manager)
	if m.registry.baseURL != "https://example.com" {
		t.Errorf("baseURL = %q, want trailing slash stripped", m.registry.baseURL)
	}
	if m.resolver == nil {
		t.Error("default resolver should be set")
	}
	if m.now == nil {
		t.Error("clock should be set")
	}
}

func TestResolvePathUsesCustomResolver(t *testing.T) {
	mgr, err := NewManager(
		Config{AppName: "testapp", RegistryURL: "https://example.com", DataDir: t.TempDir()},
		WithPathResolver(mapResolver{paths: map[string]string{"style": "/models/style.safetensors"}}),
	)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	got, err := mgr.ResolvePath("style")
	if err != nil {
		t.Fatalf("ResolvePath() error = %v", err)
	}
	if got != "/models/style.safetensors" {
		t.Errorf("ResolvePath() = %q", got)
	}
}
