package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("STUDIOKIT_DEV_MODE", "true")
	t.Setenv("STUDIOKIT_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default host = %q, want loopback", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/studiokit.db" {
		t.Errorf("default db path = %q", cfg.Database.Path)
	}
	if time.Duration(cfg.Sync.QueueRetention) != 7*24*time.Hour {
		t.Errorf("default queue retention = %v, want 168h", time.Duration(cfg.Sync.QueueRetention))
	}
	if time.Duration(cfg.Sync.AppointmentLookback) != 6*30*24*time.Hour {
		t.Errorf("default lookback = %v", time.Duration(cfg.Sync.AppointmentLookback))
	}
	if cfg.Sync.PullRetries != 3 {
		t.Errorf("default pull retries = %d, want 3", cfg.Sync.PullRetries)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("default log config = %+v", cfg.Log)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("STUDIOKIT_DEV_MODE", "true")

	path := filepath.Join(t.TempDir(), "studiokit.yaml")
	content := `
server:
  port: 9090
  shutdown_timeout: 5s
database:
  path: /tmp/cache.db
remote:
  base_url: https://backend.example.com
  owner_id: user-123
sync:
  appointment_lookback: 2160h
  drain_debounce: 250ms
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if time.Duration(cfg.Server.ShutdownTimeout) != 5*time.Second {
		t.Errorf("shutdown timeout = %v", time.Duration(cfg.Server.ShutdownTimeout))
	}
	if cfg.Remote.BaseURL != "https://backend.example.com" {
		t.Errorf("base url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.OwnerID != "user-123" {
		t.Errorf("owner id = %q", cfg.Remote.OwnerID)
	}
	if time.Duration(cfg.Sync.DrainDebounce) != 250*time.Millisecond {
		t.Errorf("debounce = %v", time.Duration(cfg.Sync.DrainDebounce))
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}

	// Unset fields keep defaults.
	if time.Duration(cfg.Sync.QueueRetention) != 7*24*time.Hour {
		t.Errorf("retention default lost: %v", time.Duration(cfg.Sync.QueueRetention))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STUDIOKIT_DEV_MODE", "true")
	t.Setenv("STUDIOKIT_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STUDIOKIT_PORT", "7070")
	t.Setenv("STUDIOKIT_DB_PATH", "/var/lib/studiokit/cache.db")
	t.Setenv("STUDIOKIT_REMOTE_URL", "https://env.example.com")
	t.Setenv("STUDIOKIT_REMOTE_API_KEY", "remote-key")
	t.Setenv("STUDIOKIT_OWNER_ID", "env-owner")
	t.Setenv("STUDIOKIT_DRAIN_DEBOUNCE", "2s")
	t.Setenv("STUDIOKIT_PULL_RETRIES", "5")
	t.Setenv("STUDIOKIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.Path != "/var/lib/studiokit/cache.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Errorf("base url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIKey != "remote-key" {
		t.Errorf("api key = %q", cfg.Remote.APIKey)
	}
	if time.Duration(cfg.Sync.DrainDebounce) != 2*time.Second {
		t.Errorf("debounce = %v", time.Duration(cfg.Sync.DrainDebounce))
	}
	if cfg.Sync.PullRetries != 5 {
		t.Errorf("pull retries = %d", cfg.Sync.PullRetries)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("STUDIOKIT_DEV_MODE", "true")
	t.Setenv("STUDIOKIT_PORT", "7070")

	path := filepath.Join(t.TempDir(), "studiokit.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env must win over file: port = %d, want 7070", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	t.Setenv("STUDIOKIT_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STUDIOKIT_DEV_MODE", "")
	t.Setenv("STUDIOKIT_REMOTE_URL", "")
	t.Setenv("STUDIOKIT_REMOTE_API_KEY", "")
	t.Setenv("STUDIOKIT_OWNER_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure without remote settings")
	}

	t.Setenv("STUDIOKIT_REMOTE_URL", "https://backend.example.com")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure without remote api key")
	}

	t.Setenv("STUDIOKIT_REMOTE_API_KEY", "key")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure without owner id")
	}

	t.Setenv("STUDIOKIT_OWNER_ID", "u1")
	if _, err := Load(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestInvalidDuration(t *testing.T) {
	t.Setenv("STUDIOKIT_DEV_MODE", "true")

	path := filepath.Join(t.TempDir(), "studiokit.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  drain_debounce: nonsense\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
