/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the engine's on-disk configuration: where trees live,
// how the builder and merge controller are tuned, and the ambient
// logging/metrics/storage knobs.
type Config struct {
	DataDir      string `yaml:"data_dir"`
	InstanceID   string `yaml:"instance_id"`
	CompressTrees bool  `yaml:"compress_trees"`
	Tree         Tree   `yaml:"tree"`
	Logging      Logging `yaml:"logging"`
	Metrics      Metrics `yaml:"metrics"`
}

// Tree holds the builder and merge tuning knobs from spec.md §6, persisted
// so a database's construction behavior survives a restart unchanged.
type Tree struct {
	BranchFactor   int `yaml:"branch_factor"`
	Inline         int `yaml:"inline"`
	InlineMaxBytes int `yaml:"inline_max_bytes"`
	MaxTreeBytes   int `yaml:"max_tree_bytes"`
	ExtRecords     int `yaml:"ext_records"`
	MaxDepth       int `yaml:"max_depth"`
	MaxRecords     int `yaml:"max_records"`
	RebuildDepth   int `yaml:"rebuild_depth"`
}

// Logging contains logging configuration.
type Logging struct {
	Level string `yaml:"level"`
}

// Metrics holds the persisted metrics setting. pkg/db registers its
// Prometheus metrics whether or not Enabled is set; nothing reads it.
type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       "./data",
		InstanceID:    "auto",
		CompressTrees: false,
		Tree: Tree{
			BranchFactor:   6,
			Inline:         500,
			InlineMaxBytes: 64 * 1024,
			MaxTreeBytes:   4 * 1024 * 1024,
			ExtRecords:     64,
			MaxDepth:       64,
			MaxRecords:     1 << 20,
			RebuildDepth:   2,
		},
		Logging: Logging{
			Level: "info",
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}

// Validate rejects a Tree whose knobs could never build a usable database:
// a non-positive byte budget or record cap would make every batch fail
// immediately in pkg/spatial/build, and a branch factor below 2 can't
// partition anything.
func (t Tree) Validate() error {
	if t.BranchFactor < 2 {
		return fmt.Errorf("tree.branch_factor must be >= 2, got %d", t.BranchFactor)
	}
	if t.MaxTreeBytes <= 0 {
		return fmt.Errorf("tree.max_tree_bytes must be > 0, got %d", t.MaxTreeBytes)
	}
	if t.InlineMaxBytes <= 0 {
		return fmt.Errorf("tree.inline_max_bytes must be > 0, got %d", t.InlineMaxBytes)
	}
	if t.InlineMaxBytes > t.MaxTreeBytes {
		return fmt.Errorf("tree.inline_max_bytes (%d) must not exceed tree.max_tree_bytes (%d)", t.InlineMaxBytes, t.MaxTreeBytes)
	}
	if t.MaxRecords <= 0 {
		return fmt.Errorf("tree.max_records must be > 0, got %d", t.MaxRecords)
	}
	if t.MaxDepth <= 0 {
		return fmt.Errorf("tree.max_depth must be > 0, got %d", t.MaxDepth)
	}
	if t.RebuildDepth < 0 {
		return fmt.Errorf("tree.rebuild_depth must be >= 0, got %d", t.RebuildDepth)
	}
	return nil
}

// Validate checks the whole config, including the tree knobs.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if err := c.Tree.Validate(); err != nil {
		return fmt.Errorf("invalid tree config: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from the specified path.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Validate path to prevent directory traversal
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions.
func SaveConfig(config *Config, configPath string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key, used
// here for a database instance's bootstrap id.
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a generated instance id
// if one doesn't exist yet.
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	instanceID, err := GenerateSecureKey(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate instance id: %w", err)
	}
	config.InstanceID = instanceID

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./geotree.yaml"
	}

	configDir := filepath.Join(homeDir, ".config", "geotree")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists.
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
