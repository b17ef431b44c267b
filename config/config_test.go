package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Kraken.BatchSize != 50 {
		t.Errorf("Expected batch size 50, got %d", cfg.Kraken.BatchSize)
	}
	if cfg.Kraken.PingInterval != 20*time.Second {
		t.Errorf("Expected ping interval 20s, got %s", cfg.Kraken.PingInterval)
	}
	if cfg.Kraken.MaxBackoff != 30*time.Second || cfg.Kraken.RetryDelay != 5*time.Second {
		t.Errorf("Unexpected backoff defaults %+v", cfg.Kraken)
	}
	if !cfg.Supervisor.IsolateFeeds {
		t.Error("Expected feeds to be isolated by default")
	}
	if cfg.Server.Path != "/ws/prices/" {
		t.Errorf("Expected /ws/prices/, got %s", cfg.Server.Path)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Expected redis mirror disabled by default, got %q", cfg.Redis.Addr)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PRICES_KRAKEN_BATCH_SIZE", "25")
	t.Setenv("PRICES_SUPERVISOR_ISOLATE_FEEDS", "false")
	t.Setenv("PRICES_KRAKEN_STABLE_AFTER", "0s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Kraken.BatchSize != 25 {
		t.Errorf("Expected batch size 25, got %d", cfg.Kraken.BatchSize)
	}
	if cfg.Supervisor.IsolateFeeds {
		t.Error("Expected isolate_feeds=false from env")
	}
	if cfg.Kraken.StableAfter != 0 {
		t.Errorf("Expected stable_after 0, got %s", cfg.Kraken.StableAfter)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  addr: \":9999\"\nkraken:\n  retry_delay: 2s\nredis:\n  addr: localhost:6379\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Expected :9999, got %s", cfg.Server.Addr)
	}
	if cfg.Kraken.RetryDelay != 2*time.Second {
		t.Errorf("Expected 2s retry delay, got %s", cfg.Kraken.RetryDelay)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Interval != time.Second {
		t.Errorf("Unexpected redis config %+v", cfg.Redis)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no exchanges", func(c *Config) { c.Binance.Enabled = false; c.Kraken.Enabled = false }},
		{"zero batch", func(c *Config) { c.Kraken.BatchSize = 0 }},
		{"bad path", func(c *Config) { c.Server.Path = "ws" }},
		{"no backoff unit", func(c *Config) { c.Kraken.BackoffUnit = 0 }},
		{"redis without interval", func(c *Config) { c.Redis.Addr = "x:1"; c.Redis.Interval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
