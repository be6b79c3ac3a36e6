package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	yamlContent := []byte(`
server:
  host: "0.0.0.0"
  port: 8080
backend:
  base_url: "https://api.example.com"
  timeout_seconds: 15
auth:
  base_url: "https://auth.example.com"
  api_key: "anon-key"
  email: "user@example.com"
  password: "hunter2"
cache:
  max_entries: 50
  ttl_minutes: 30
  persist: true
  sqlite_path: "/tmp/vela/cache.db"
archive:
  data_dir: "/tmp/vela/data"
backfill:
  api_key: "alpaca-key"
  api_secret: "alpaca-secret"
  start_date: "2020-01-01"
  batch_size: 500
  rate_limit_per_min: 200
logging:
  level: "info"
  format: "json"
`)

	tmpFile, err := os.CreateTemp("", "vela-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	// Clear any environment overrides that might interfere.
	os.Unsetenv("VELA_BACKEND_URL")
	os.Unsetenv("VELA_AUTH_URL")
	os.Unsetenv("VELA_AUTH_KEY")
	os.Unsetenv("VELA_AUTH_TOKEN")
	os.Unsetenv("SQLITE_PATH")
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Server --
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}

	// -- Backend --
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "https://api.example.com")
	}
	if cfg.Backend.Timeout() != 15*time.Second {
		t.Errorf("Backend.Timeout() = %v, want %v", cfg.Backend.Timeout(), 15*time.Second)
	}

	// -- Auth --
	if cfg.Auth.Email != "user@example.com" {
		t.Errorf("Auth.Email = %q, want %q", cfg.Auth.Email, "user@example.com")
	}
	if cfg.Auth.APIKey != "anon-key" {
		t.Errorf("Auth.APIKey = %q, want %q", cfg.Auth.APIKey, "anon-key")
	}

	// -- Cache --
	if cfg.Cache.MaxEntries != 50 {
		t.Errorf("Cache.MaxEntries = %d, want %d", cfg.Cache.MaxEntries, 50)
	}
	if cfg.Cache.TTL() != 30*time.Minute {
		t.Errorf("Cache.TTL() = %v, want %v", cfg.Cache.TTL(), 30*time.Minute)
	}
	if !cfg.Cache.Persist {
		t.Error("Cache.Persist = false, want true")
	}
	if cfg.Cache.SQLitePath != "/tmp/vela/cache.db" {
		t.Errorf("Cache.SQLitePath = %q, want %q", cfg.Cache.SQLitePath, "/tmp/vela/cache.db")
	}

	// -- Backfill --
	if cfg.Backfill.BatchSize != 500 {
		t.Errorf("Backfill.BatchSize = %d, want %d", cfg.Backfill.BatchSize, 500)
	}
	if cfg.Backfill.StartDate != "2020-01-01" {
		t.Errorf("Backfill.StartDate = %q, want %q", cfg.Backfill.StartDate, "2020-01-01")
	}

	// -- Logging --
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
backend:
  base_url: "https://yaml.example.com"
auth:
  token: "yaml-token"
archive:
  data_dir: "/original/data"
`)

	tmpFile, err := os.CreateTemp("", "vela-config-env-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	os.Setenv("VELA_BACKEND_URL", "https://env.example.com")
	os.Setenv("DATA_DIR", "/env/data")
	os.Unsetenv("VELA_AUTH_TOKEN")
	defer os.Unsetenv("VELA_BACKEND_URL")
	defer os.Unsetenv("DATA_DIR")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Errorf("Backend.BaseURL = %q, want %q (env override)", cfg.Backend.BaseURL, "https://env.example.com")
	}
	// Token should remain from YAML since no env override was set.
	if cfg.Auth.Token != "yaml-token" {
		t.Errorf("Auth.Token = %q, want %q (from YAML)", cfg.Auth.Token, "yaml-token")
	}
	if cfg.Archive.DataDir != "/env/data" {
		t.Errorf("Archive.DataDir = %q, want %q (env override)", cfg.Archive.DataDir, "/env/data")
	}
}

func TestDefaultsWhenUnset(t *testing.T) {
	var b Backend
	if b.Timeout() != 30*time.Second {
		t.Errorf("zero Backend.Timeout() = %v, want 30s", b.Timeout())
	}
	var c Cache
	if c.TTL() != 30*time.Minute {
		t.Errorf("zero Cache.TTL() = %v, want 30m", c.TTL())
	}
}
