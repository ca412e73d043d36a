// Package config loads the server configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified"; ApplyDefaults fills them in.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// ModelsDir is the directory of per-model config files.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// CacheDir overrides where downloaded artifacts are kept.
	CacheDir string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	// StorePath is the SQLite completion ledger; empty disables it.
	StorePath string `json:"store_path" yaml:"store_path" toml:"store_path"`
	// DefaultModel, when set, is loaded before the listener starts.
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	// HubBaseURL overrides the artifact hub endpoint.
	HubBaseURL string `json:"hub_base_url" yaml:"hub_base_url" toml:"hub_base_url"`
	// KeepAliveSeconds is the HTTP server keep-alive / idle timeout.
	KeepAliveSeconds int `json:"keep_alive_seconds" yaml:"keep_alive_seconds" toml:"keep_alive_seconds"`
	// SlotTimeoutSeconds bounds the model mailbox handshake.
	SlotTimeoutSeconds int `json:"slot_timeout_seconds" yaml:"slot_timeout_seconds" toml:"slot_timeout_seconds"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// CORSOrigins lists allowed origins; empty means all.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ModelsDir == "" {
		c.ModelsDir = "./models"
	}
	if c.KeepAliveSeconds <= 0 {
		c.KeepAliveSeconds = 1800
	}
	if c.SlotTimeoutSeconds <= 0 {
		c.SlotTimeoutSeconds = 60
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// KeepAlive returns the keep-alive duration.
func (c Config) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// SlotTimeout returns the handshake budget.
func (c Config) SlotTimeout() time.Duration {
	return time.Duration(c.SlotTimeoutSeconds) * time.Second
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
