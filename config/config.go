package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Stream     StreamConfig     `yaml:"stream"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// StreamConfig tunes the push channels and the timeline compressor.
type StreamConfig struct {
	ListDebounceMs           int `yaml:"list_debounce_ms"`
	DetailDebounceMs         int `yaml:"detail_debounce_ms"`
	HeartbeatSeconds         int `yaml:"heartbeat_seconds"`
	CollapseThresholdMinutes int `yaml:"collapse_threshold_minutes"`
}

// ListDebounce returns the coalescing window for set-scoped channels.
func (s StreamConfig) ListDebounce() time.Duration {
	return time.Duration(s.ListDebounceMs) * time.Millisecond
}

// DetailDebounce returns the coalescing window for per-session channels.
func (s StreamConfig) DetailDebounce() time.Duration {
	return time.Duration(s.DetailDebounceMs) * time.Millisecond
}

// Heartbeat returns the keep-alive interval.
func (s StreamConfig) Heartbeat() time.Duration {
	return time.Duration(s.HeartbeatSeconds) * time.Second
}

// CollapseThreshold returns the minimum segment duration kept verbatim by
// the timeline compressor.
func (s StreamConfig) CollapseThreshold() time.Duration {
	return time.Duration(s.CollapseThresholdMinutes) * time.Minute
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Stream.ListDebounceMs <= 0 {
		cfg.Stream.ListDebounceMs = 250
	}
	if cfg.Stream.DetailDebounceMs <= 0 {
		cfg.Stream.DetailDebounceMs = 150
	}
	if cfg.Stream.HeartbeatSeconds <= 0 {
		cfg.Stream.HeartbeatSeconds = 25
	}
	if cfg.Stream.CollapseThresholdMinutes <= 0 {
		cfg.Stream.CollapseThresholdMinutes = 15
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
