// Package config loads the YAML configuration for a warren-ledger
// instance: where its backend lives, its device identity key, logging,
// and sync transport settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warren-ledger/pkg/log"
)

// Config is a warren-ledger instance's on-disk configuration.
type Config struct {
	// DataDir is the directory the backend (BoltDB file, device key) lives
	// under.
	DataDir string `yaml:"data_dir"`

	// DeviceKeyPath is the auth key name the CLI registers this
	// instance's device key under when it creates a database, and signs
	// with when it writes to one. The key material itself is stored by
	// pkg/instance under a fixed backend slot.
	DeviceKeyPath string `yaml:"device_key_name"`

	// MetricsAddr is where the Prometheus /metrics and /health, /ready,
	// /live endpoints are served, empty to disable.
	MetricsAddr string `yaml:"metrics_addr"`

	Log  LogConfig  `yaml:"log"`
	Sync SyncConfig `yaml:"sync"`
}

// LogConfig controls pkg/log.Init.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SyncConfig controls the sync core's listener and background flush
// behavior.
type SyncConfig struct {
	// ListenAddr is the address the gRPC sync transport listens on, empty
	// to disable serving (the instance can still dial out to peers).
	ListenAddr string `yaml:"listen_addr"`

	// FlushInterval is loaded and defaulted but not read by the sync
	// core: the background flush worker delivers items as soon as they
	// are queued, not on an interval.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxBackoff caps the exponential backoff applied to a peer that is
	// repeatedly unreachable.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:       "./data",
		DeviceKeyPath: "device",
		MetricsAddr:   "127.0.0.1:9090",
		Log:           LogConfig{Level: "info", JSON: false},
		Sync: SyncConfig{
			FlushInterval: 10 * time.Second,
			MaxBackoff:    5 * time.Minute,
		},
	}
}

// Load reads and parses a YAML config file at path, filling any field
// left zero with Default()'s value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Sync.FlushInterval == 0 {
		cfg.Sync.FlushInterval = 10 * time.Second
	}
	if cfg.Sync.MaxBackoff == 0 {
		cfg.Sync.MaxBackoff = 5 * time.Minute
	}
	return cfg, nil
}

// InitLogging applies cfg.Log to the global logger.
func (c *Config) InitLogging() {
	log.Init(log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	})
}
