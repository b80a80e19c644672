// Package config provides configuration loading and structs for the Kensaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug  bool         `yaml:"debug"`
	Server ServerConfig `yaml:"server"`
	Model  ModelConfig  `yaml:"model"`
	Store  StoreConfig  `yaml:"store"`
	Index  IndexConfig  `yaml:"index"`
	Search SearchConfig `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ModelConfig holds settings for the local inference model. Set once at
// startup; the model handle treats them as immutable.
type ModelConfig struct {
	Path        string `yaml:"path"`
	Threads     int    `yaml:"threads"`
	ContextSize int    `yaml:"context_size"`
	BatchSize   int    `yaml:"batch_size"`
	Dimensions  int    `yaml:"dimensions"`
	// ItemTimeoutMS caps per-item inference time during batch embedding.
	ItemTimeoutMS int `yaml:"item_timeout_ms"`
	// MaxQueueDepth bounds how many embed calls may wait on the inference
	// context before new callers are rejected.
	MaxQueueDepth int `yaml:"max_queue_depth"`
}

// StoreConfig holds the search store endpoint and credentials.
type StoreConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// IndexConfig holds the vector index name and similarity metric.
type IndexConfig struct {
	Name   string `yaml:"name"`
	Metric string `yaml:"metric"` // "cosine" or "l2"
}

// SearchConfig holds search settings.
type SearchConfig struct {
	DefaultK      int `yaml:"default_k"`
	MaxK          int `yaml:"max_k"`
	NumCandidates int `yaml:"num_candidates"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and validates. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Model.Path = expandPath(cfg.Model.Path, configDir)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that must hold before any component is built.
func Validate(cfg *Config) error {
	if cfg.Model.Dimensions <= 0 {
		return fmt.Errorf("model.dimensions must be positive, got %d", cfg.Model.Dimensions)
	}
	switch cfg.Index.Metric {
	case "cosine", "l2":
	default:
		return fmt.Errorf("index.metric must be \"cosine\" or \"l2\", got %q", cfg.Index.Metric)
	}
	if cfg.Index.Name == "" {
		return fmt.Errorf("index.name must not be empty")
	}
	if len(cfg.Store.Addresses) == 0 {
		return fmt.Errorf("store.addresses must not be empty")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
