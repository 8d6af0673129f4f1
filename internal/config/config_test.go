package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing store", func(c *Config) { c.Store = nil }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"zero max connections", func(c *Config) { c.Store.MaxConnections = 0 }},
		{"missing http", func(c *Config) { c.HTTP = nil }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"ping not below read timeout", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"zero buffer ttl", func(c *Config) { c.Session.BufferTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PEERLINK_HTTP_PORT", "9090")
	t.Setenv("PEERLINK_STORE_PATH", "/tmp/env.db")
	t.Setenv("PEERLINK_SESSION_TTL", "45m")
	t.Setenv("PEERLINK_HTTP_READ_TIMEOUT", "not-a-duration")

	cfg := LoadFromEnv()

	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Store.Path != "/tmp/env.db" {
		t.Errorf("store path = %s", cfg.Store.Path)
	}
	if cfg.Session.TTL != 45*time.Minute {
		t.Errorf("session ttl = %s, want 45m", cfg.Session.TTL)
	}
	// Unparseable values keep the default.
	if cfg.HTTP.ReadTimeout != DefaultConfig().HTTP.ReadTimeout {
		t.Errorf("read timeout = %s, want default", cfg.HTTP.ReadTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"store": {"path": "/tmp/file.db"},
		"http": {"port": 9999, "read_timeout": "45s"},
		"session": {"ttl": "15m"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Store.Path != "/tmp/file.db" {
		t.Errorf("store path = %s", cfg.Store.Path)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != 45*time.Second {
		t.Errorf("read timeout = %s, want 45s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Session.TTL != 15*time.Minute {
		t.Errorf("session ttl = %s, want 15m", cfg.Session.TTL)
	}
	// Untouched sections keep defaults.
	if cfg.WebSocket.PingInterval != DefaultConfig().WebSocket.PingInterval {
		t.Errorf("ping interval = %s, want default", cfg.WebSocket.PingInterval)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("PEERLINK_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 7070}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	// File beats environment.
	if cfg := Load(path); cfg.HTTP.Port != 7070 {
		t.Errorf("port = %d, want file value 7070", cfg.HTTP.Port)
	}

	// A missing file falls back to the environment layer.
	if cfg := Load(filepath.Join(t.TempDir(), "missing.json")); cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want env value 9090", cfg.HTTP.Port)
	}

	// No file, no env override: defaults.
	os.Unsetenv("PEERLINK_HTTP_PORT")
	if cfg := Load(""); cfg.HTTP.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.HTTP.Port)
	}
}
