package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configtrack.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid config loads with defaults", func(t *testing.T) {
		path := writeTempConfig(t, "environment: https://api.example.com/v1\nstore:\n  backend: redis\n  redis:\n    addr: localhost:6379\n")
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Environment != "https://api.example.com/v1" {
			t.Fatalf("unexpected environment %q", cfg.Environment)
		}
		if cfg.Cache.Backend != "memory" {
			t.Fatalf("expected default memory cache, got %q", cfg.Cache.Backend)
		}
		if cfg.Retry.MaxAttempts != 5 {
			t.Fatalf("expected default retry ceiling, got %d", cfg.Retry.MaxAttempts)
		}
		if cfg.Store.CommitTTL != Duration(90*24*time.Hour) {
			t.Fatalf("expected default commit ttl, got %v", cfg.Store.CommitTTL)
		}
	})

	t.Run("duration strings parse", func(t *testing.T) {
		path := writeTempConfig(t, "environment: e\nstore:\n  backend: redis\n  redis:\n    addr: localhost:6379\n  commit_ttl: 48h\ncache:\n  ttl: 90s\n")
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Store.CommitTTL.Std() != 48*time.Hour {
			t.Fatalf("unexpected commit ttl %v", cfg.Store.CommitTTL)
		}
		if cfg.Cache.TTL.Std() != 90*time.Second {
			t.Fatalf("unexpected cache ttl %v", cfg.Cache.TTL)
		}
	})

	t.Run("bad duration rejected", func(t *testing.T) {
		path := writeTempConfig(t, "environment: e\nstore:\n  backend: redis\n  redis:\n    addr: localhost:6379\n  commit_ttl: soon\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("missing environment", func(t *testing.T) {
		path := writeTempConfig(t, "environment: \"\"\nstore:\n  backend: redis\n  redis:\n    addr: localhost:6379\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown store backend", func(t *testing.T) {
		path := writeTempConfig(t, "environment: e\nstore:\n  backend: dynamo\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("postgres backend requires dsn", func(t *testing.T) {
		path := writeTempConfig(t, "environment: e\nstore:\n  backend: postgres\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("postgres backend with dsn", func(t *testing.T) {
		path := writeTempConfig(t, "environment: e\nstore:\n  backend: postgres\n  postgres_dsn: postgres://localhost/configtrack\n")
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Store.Backend != "postgres" {
			t.Fatalf("unexpected backend %q", cfg.Store.Backend)
		}
	})

	t.Run("redis cache needs redis addr", func(t *testing.T) {
		path := writeTempConfig(t, "environment: e\nstore:\n  backend: postgres\n  postgres_dsn: postgres://localhost/x\n  redis:\n    addr: \"\"\ncache:\n  backend: redis\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("zero ttl rejected", func(t *testing.T) {
		path := writeTempConfig(t, "environment: e\nstore:\n  backend: redis\n  redis:\n    addr: localhost:6379\n  commit_ttl: 0s\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatalf("expected error")
		}
	})
}
