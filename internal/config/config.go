package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string      `yaml:"environment"`
	ChatID      string      `yaml:"chat_id"`
	CallTimeout Duration    `yaml:"call_timeout"`
	Store       StoreConfig `yaml:"store"`
	Cache       CacheConfig `yaml:"cache"`
	Retry       RetryConfig `yaml:"retry"`
	MCP         MCPConfig   `yaml:"mcp"`
}

type StoreConfig struct {
	Backend     string      `yaml:"backend"`
	Redis       RedisConfig `yaml:"redis"`
	PostgresDSN string      `yaml:"postgres_dsn"`
	CommitTTL   Duration    `yaml:"commit_ttl"`
	SnapshotTTL Duration    `yaml:"snapshot_ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	Backend string   `yaml:"backend"`
	TTL     Duration `yaml:"ttl"`
}

type RetryConfig struct {
	MaxAttempts      int      `yaml:"max_attempts"`
	InitialBackoff   Duration `yaml:"initial_backoff"`
	MaxBackoff       Duration `yaml:"max_backoff"`
	ConflictAttempts int      `yaml:"conflict_attempts"`
}

// MCPConfig describes how to spawn the remote entity tool server.
type MCPConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

func DefaultConfig() *Config {
	return &Config{
		Environment: "https://api.example.com/v1",
		CallTimeout: Duration(30 * time.Second),
		Store: StoreConfig{
			Backend:     "redis",
			Redis:       RedisConfig{Addr: "localhost:6379"},
			CommitTTL:   Duration(90 * 24 * time.Hour),
			SnapshotTTL: Duration(30 * 24 * time.Hour),
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration(time.Hour),
		},
		Retry: RetryConfig{
			MaxAttempts:      5,
			InitialBackoff:   Duration(500 * time.Millisecond),
			MaxBackoff:       Duration(30 * time.Second),
			ConflictAttempts: 3,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Environment) == "" {
		return fmt.Errorf("environment is required")
	}

	switch cfg.Store.Backend {
	case "redis":
		if strings.TrimSpace(cfg.Store.Redis.Addr) == "" {
			return fmt.Errorf("store redis addr is required")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Store.PostgresDSN) == "" {
			return fmt.Errorf("store postgres_dsn is required")
		}
	case "":
		return fmt.Errorf("store backend is required")
	default:
		return fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Store.Redis.Addr) == "" {
			return fmt.Errorf("cache backend redis requires store redis addr")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}

	if cfg.Store.CommitTTL <= 0 {
		return fmt.Errorf("commit_ttl must be positive")
	}
	if cfg.Store.SnapshotTTL <= 0 {
		return fmt.Errorf("snapshot_ttl must be positive")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if cfg.Retry.ConflictAttempts < 1 {
		return fmt.Errorf("retry conflict_attempts must be at least 1")
	}

	return nil
}
