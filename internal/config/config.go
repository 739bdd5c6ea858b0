// Package config loads fieldsync configuration from defaults, an
// XDG-style JSON file, and FIELDSYNC_* environment variable overrides,
// in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Remote  RemoteConfig
	Storage StorageConfig
	Sync    SyncConfig
	Log     LogConfig
}

type RemoteConfig struct {
	BaseURL string
}

type StorageConfig struct {
	DataDir string
}

type SyncConfig struct {
	// ProbeInterval is how often the connectivity monitor checks
	// reachability.
	ProbeInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL: "http://localhost:8787",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Sync: SyncConfig{
			ProbeInterval: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "fieldsync-data"
		}
	}
	return filepath.Join(dir, "fieldsync")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "fieldsync", "config.json")
}

// Load reads configuration from the config file (flat JSON object at
// $XDG_CONFIG_HOME/fieldsync/config.json) with environment variables
// (FIELDSYNC_*) overriding file values.
func Load() (Config, error) {
	return loadFrom(configFilePath())
}

func loadFrom(path string) (Config, error) {
	cfg := defaults()

	vals, err := fileValues(path)
	if err != nil {
		return Config{}, err
	}
	applyValues(&cfg, vals)
	applyEnvOverrides(&cfg)

	if cfg.Remote.BaseURL == "" {
		return Config{}, fmt.Errorf("missing required config: remote base URL (set FIELDSYNC_REMOTE_URL or remote_url in %s)", path)
	}
	return cfg, nil
}

// fileValues reads the flat JSON config object. A missing file is not
// an error; a malformed one is.
func fileValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	vals := make(map[string]any)
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return vals, nil
}

func applyValues(cfg *Config, vals map[string]any) {
	if v, ok := stringVal(vals, "remote_url"); ok {
		cfg.Remote.BaseURL = v
	}
	if v, ok := stringVal(vals, "data_dir"); ok {
		cfg.Storage.DataDir = v
	}
	if v, ok := intVal(vals, "probe_interval_seconds"); ok && v > 0 {
		cfg.Sync.ProbeInterval = time.Duration(v) * time.Second
	}
	if v, ok := stringVal(vals, "log_level"); ok {
		cfg.Log.Level = v
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIELDSYNC_REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("FIELDSYNC_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("FIELDSYNC_PROBE_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Sync.ProbeInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("FIELDSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func stringVal(vals map[string]any, key string) (string, bool) {
	v, ok := vals[key].(string)
	return v, ok
}

func intVal(vals map[string]any, key string) (int, bool) {
	// JSON numbers decode as float64.
	if f, ok := vals[key].(float64); ok {
		return int(f), true
	}
	return 0, false
}
