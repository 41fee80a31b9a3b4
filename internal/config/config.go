// Package config handles configuration loading and validation for the
// quillwitness CLI tools.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds CLI configuration for sealing and verifying documents.
type Config struct {
	// EpochTargetSeconds is the wall-clock duration each epoch's VDF should
	// take once calibrated (the epoch chain manager's target, default 10s).
	EpochTargetSeconds float64 `toml:"epoch_target_seconds"`

	// ModulusHex optionally overrides the default RSA-2048 VDF modulus,
	// mainly for tests. Empty means use the built-in default.
	ModulusHex string `toml:"modulus_hex"`

	// SigningKeyPath is the path to a PEM-encoded ECDSA P-384 private key.
	SigningKeyPath string `toml:"signing_key_path"`

	// StorePath is the path to the SQLite envelope archive.
	StorePath string `toml:"store_path"`

	// LogPath is the path to the log file; empty means stderr.
	LogPath string `toml:"log_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".quillwitness")

	return &Config{
		EpochTargetSeconds: 10.0,
		SigningKeyPath:     filepath.Join(base, "signing_key.pem"),
		StorePath:          filepath.Join(base, "documents.db"),
		LogPath:            "",
		LogLevel:           "info",
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".quillwitness", "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.EpochTargetSeconds <= 0 {
		return errors.New("config: epoch_target_seconds must be positive")
	}
	if c.SigningKeyPath == "" {
		return errors.New("config: signing_key_path is required")
	}
	return nil
}

// EnsureDirectories creates all necessary directories referenced by the config.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.SigningKeyPath), filepath.Dir(c.StorePath)}
	if c.LogPath != "" {
		dirs = append(dirs, filepath.Dir(c.LogPath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return nil
}

// QuillDir returns the base quillwitness configuration directory.
func QuillDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".quillwitness")
}
