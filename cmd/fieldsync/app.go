package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fieldops/fieldsync/internal/api"
	"github.com/fieldops/fieldsync/internal/collect"
	"github.com/fieldops/fieldsync/internal/config"
	"github.com/fieldops/fieldsync/internal/connectivity"
	"github.com/fieldops/fieldsync/internal/store"
	"github.com/fieldops/fieldsync/internal/syncer"
)

// app wires the pieces every command needs: config, local store, and
// the gateway client with any cached session restored.
type app struct {
	cfg    config.Config
	store  *store.Store
	client *api.Client
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	})))

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	client := api.New(cfg.Remote.BaseURL)
	if sess, err := loadSession(cfg.Storage.DataDir); err == nil {
		client.SetSession(sess.Token, sess.Enumerator)
	}

	return &app{cfg: cfg, store: st, client: client}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildSync assembles the connectivity monitor and sync orchestrator
// around the app's store and client.
func (a *app) buildSync() (*connectivity.Monitor, *syncer.Orchestrator) {
	monitor := connectivity.NewMonitor(a.client, a.cfg.Sync.ProbeInterval)
	orch := syncer.New(a.store, a.client, monitor.Online)
	orch.RefreshPendingCount()
	return monitor, orch
}

func (a *app) collectService() *collect.Service {
	return collect.NewService(a.store, nil)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// session is the on-disk shape of a cached login, kept between CLI
// invocations at dataDir/session.json.
type session struct {
	Token      string         `json:"token"`
	Enumerator api.Enumerator `json:"enumerator"`
}

func sessionPath(dataDir string) string {
	return filepath.Join(dataDir, "session.json")
}

func saveSession(dataDir string, sess session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	// Token material, keep it owner-only.
	return os.WriteFile(sessionPath(dataDir), data, 0o600)
}

func loadSession(dataDir string) (session, error) {
	data, err := os.ReadFile(sessionPath(dataDir))
	if err != nil {
		return session{}, err
	}
	var sess session
	if err := json.Unmarshal(data, &sess); err != nil {
		return session{}, fmt.Errorf("parsing session file: %w", err)
	}
	if sess.Token == "" {
		return session{}, fmt.Errorf("session file has no token")
	}
	return sess, nil
}

func clearSession(dataDir string) error {
	err := os.Remove(sessionPath(dataDir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
