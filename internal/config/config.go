package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration: the SQLite store, the HTTP
// listener, the push-hub websocket behavior, and session lifecycle knobs.
type Config struct {
	Store     *StoreConfig     `json:"store"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Session   *SessionConfig   `json:"session"`
}

type StoreConfig struct {
	Path           string `json:"path"`
	MaxConnections int    `json:"max_connections"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
}

type SessionConfig struct {
	TTL       time.Duration `json:"ttl"`
	BufferTTL time.Duration `json:"buffer_ttl"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: &StoreConfig{
			Path:           "./peerlink.db",
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		Session: &SessionConfig{
			TTL:       30 * time.Minute,
			BufferTTL: 10 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.Store.MaxConnections <= 0 {
		return fmt.Errorf("store max connections must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.BufferTTL <= 0 {
		return fmt.Errorf("session buffer TTL must be positive")
	}

	return nil
}

// LoadFromEnv starts from defaults and applies PEERLINK_* overrides.
// Unparseable values are ignored in favor of the default.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if path := os.Getenv("PEERLINK_STORE_PATH"); path != "" {
		config.Store.Path = path
	}
	if raw := os.Getenv("PEERLINK_STORE_MAX_CONNECTIONS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			config.Store.MaxConnections = n
		}
	}

	if host := os.Getenv("PEERLINK_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if raw := os.Getenv("PEERLINK_HTTP_PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			config.HTTP.Port = p
		}
	}
	if raw := os.Getenv("PEERLINK_HTTP_READ_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if raw := os.Getenv("PEERLINK_HTTP_WRITE_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}

	if raw := os.Getenv("PEERLINK_WEBSOCKET_PING_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if raw := os.Getenv("PEERLINK_WEBSOCKET_READ_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}

	if raw := os.Getenv("PEERLINK_SESSION_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Session.TTL = d
		}
	}
	if raw := os.Getenv("PEERLINK_SESSION_BUFFER_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Session.BufferTTL = d
		}
	}

	return config
}

// configFile is the JSON shape, with durations as strings so the file
// can say "30m" instead of nanosecond counts.
type configFile struct {
	Store     *storeConfigFile     `json:"store"`
	HTTP      *httpConfigFile      `json:"http"`
	WebSocket *webSocketConfigFile `json:"websocket"`
	Session   *sessionConfigFile   `json:"session"`
}

type storeConfigFile struct {
	Path           string `json:"path"`
	MaxConnections int    `json:"max_connections"`
}

type httpConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type webSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
}

type sessionConfigFile struct {
	TTL       string `json:"ttl"`
	BufferTTL string `json:"buffer_ttl"`
}

// LoadFromFile reads a JSON config, applying file values on top of
// defaults and validating the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.Store != nil {
		if file.Store.Path != "" {
			config.Store.Path = file.Store.Path
		}
		if file.Store.MaxConnections > 0 {
			config.Store.MaxConnections = file.Store.MaxConnections
		}
	}

	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if d, err := parseOptionalDuration(file.HTTP.ReadTimeout); err == nil && d > 0 {
			config.HTTP.ReadTimeout = d
		}
		if d, err := parseOptionalDuration(file.HTTP.WriteTimeout); err == nil && d > 0 {
			config.HTTP.WriteTimeout = d
		}
	}

	if file.WebSocket != nil {
		if d, err := parseOptionalDuration(file.WebSocket.PingInterval); err == nil && d > 0 {
			config.WebSocket.PingInterval = d
		}
		if d, err := parseOptionalDuration(file.WebSocket.ReadTimeout); err == nil && d > 0 {
			config.WebSocket.ReadTimeout = d
		}
	}

	if file.Session != nil {
		if d, err := parseOptionalDuration(file.Session.TTL); err == nil && d > 0 {
			config.Session.TTL = d
		}
		if d, err := parseOptionalDuration(file.Session.BufferTTL); err == nil && d > 0 {
			config.Session.BufferTTL = d
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func parseOptionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// Load applies the precedence file > environment > defaults. A missing
// or broken file falls back to the environment layer.
func Load(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}
	return config
}
