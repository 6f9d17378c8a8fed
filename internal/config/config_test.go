package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("TOURNAMENT_REDIS_ADDR", "cache:6380")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
storage:
  backend: redis
redis:
  addr: ${TOURNAMENT_REDIS_ADDR}
scheduler:
  interval: 2s
log:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Redis.Addr != "cache:6380" {
		t.Fatalf("expected expanded redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Scheduler.Interval != 2*time.Second {
		t.Fatalf("expected 2s interval, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.StartDelay != 5*time.Second {
		t.Fatalf("expected default 5s start delay, got %v", cfg.Scheduler.StartDelay)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.Log.SlogLevel())
	}
	if cfg.Tournaments.Directory != "tournaments" {
		t.Fatalf("expected default tournaments directory, got %q", cfg.Tournaments.Directory)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  backend: mongo\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Storage.Backend != BackendSQLite {
		t.Fatalf("expected sqlite backend by default, got %q", cfg.Storage.Backend)
	}
	if cfg.Manager.IOWorkers != 8 {
		t.Fatalf("expected 8 io workers, got %d", cfg.Manager.IOWorkers)
	}
	if got := cfg.Postgres.ConnectionString(); got != "postgres://:@localhost:5432/?sslmode=disable" {
		t.Fatalf("unexpected connection string %q", got)
	}
}
