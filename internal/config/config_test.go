package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port default: %q", cfg.Port)
	}
	if cfg.Auth.Mode != "dev" {
		t.Errorf("auth mode default: %q", cfg.Auth.Mode)
	}
	if cfg.Search.TimeoutSeconds != 20 {
		t.Errorf("timeout default: %d", cfg.Search.TimeoutSeconds)
	}
	if cfg.CredentialSecret == "" {
		t.Error("credential secret must have a dev fallback")
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("port: \"9000\"\nsearch:\n  timeoutSeconds: 5\nproviders:\n  dat:\n    identityBase: https://identity.example\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9100" {
		t.Errorf("env must override file, got %q", cfg.Port)
	}
	if cfg.Search.TimeoutSeconds != 5 {
		t.Errorf("file timeout: %d", cfg.Search.TimeoutSeconds)
	}
	if cfg.Providers.DAT.IdentityBase != "https://identity.example" {
		t.Errorf("dat identity base: %q", cfg.Providers.DAT.IdentityBase)
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}
