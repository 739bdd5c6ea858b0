package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FIELDSYNC_REMOTE_URL", "")
	t.Setenv("FIELDSYNC_DATA_DIR", "")
	t.Setenv("FIELDSYNC_PROBE_INTERVAL", "")
	t.Setenv("FIELDSYNC_LOG_LEVEL", "")
}

// TestDefaults verifies all default values are applied when no config
// file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Remote.BaseURL != "http://localhost:8787" {
		t.Errorf("Remote.BaseURL = %q, want %q", cfg.Remote.BaseURL, "http://localhost:8787")
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
	if cfg.Sync.ProbeInterval != 15*time.Second {
		t.Errorf("Sync.ProbeInterval = %v, want 15s", cfg.Sync.ProbeInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestFileValues(t *testing.T) {
	clearEnv(t)

	path := writeTempConfig(t, `{
  "remote_url": "https://gateway.example.org",
  "data_dir": "/var/lib/fieldsync",
  "probe_interval_seconds": 60,
  "log_level": "debug"
}`)

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Remote.BaseURL != "https://gateway.example.org" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.Storage.DataDir != "/var/lib/fieldsync" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Sync.ProbeInterval != time.Minute {
		t.Errorf("Sync.ProbeInterval = %v, want 1m", cfg.Sync.ProbeInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIELDSYNC_REMOTE_URL", "https://env.example.org")
	t.Setenv("FIELDSYNC_PROBE_INTERVAL", "5")

	path := writeTempConfig(t, `{"remote_url": "https://file.example.org", "probe_interval_seconds": 60}`)

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Remote.BaseURL != "https://env.example.org" {
		t.Errorf("Remote.BaseURL = %q, want env value", cfg.Remote.BaseURL)
	}
	if cfg.Sync.ProbeInterval != 5*time.Second {
		t.Errorf("Sync.ProbeInterval = %v, want 5s", cfg.Sync.ProbeInterval)
	}
}

func TestMalformedFileRejected(t *testing.T) {
	clearEnv(t)

	path := writeTempConfig(t, `{not json`)
	if _, err := loadFrom(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestBadProbeIntervalIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIELDSYNC_PROBE_INTERVAL", "not-a-number")

	cfg, err := loadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.ProbeInterval != 15*time.Second {
		t.Errorf("Sync.ProbeInterval = %v, want default 15s", cfg.Sync.ProbeInterval)
	}
}
