/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/common/atomicfile"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/pgmstore/pkg/store"
)

// Config represents the pgmstore configuration
type Config struct {
	DataDir    string  `yaml:"data_dir"`
	DataFile   string  `yaml:"data_file"`
	IndexFile  string  `yaml:"index_file"`
	SyncWrites bool    `yaml:"sync_writes"`
	MaxPixels  int64   `yaml:"max_pixels"`
	Server     Server  `yaml:"server"`
	Logging    Logging `yaml:"logging"`
}

// Server contains HTTP API configuration
type Server struct {
	Bind   string `yaml:"bind"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // Empty disables authentication
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data",
		DataFile:   store.DefaultDataFile,
		IndexFile:  store.DefaultIndexFile,
		SyncWrites: true,
		MaxPixels:  store.DefaultMaxPixels,
		Server: Server{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from the specified path. Fields missing
// from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

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

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions.
// The file is replaced atomically.
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// atomicfile creates its temporary file with mode 0600
	f, err := atomicfile.New(configPath)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer f.RemoveIfNotClosed()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports configuration values the store or server cannot use
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.DataFile != "" && c.DataFile == c.IndexFile {
		errs = append(errs, fmt.Errorf("data_file and index_file must differ, both are %q", c.DataFile))
	}
	for _, name := range []string{c.DataFile, c.IndexFile} {
		if strings.ContainsAny(name, `/\`) {
			errs = append(errs, fmt.Errorf("file name %q must not contain a path separator", name))
		}
	}
	if c.MaxPixels < 0 {
		errs = append(errs, fmt.Errorf("max_pixels must not be negative, got %d", c.MaxPixels))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// StoreConfig maps the configuration onto store options
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		DataDir:    c.DataDir,
		DataFile:   c.DataFile,
		IndexFile:  c.IndexFile,
		SyncWrites: c.SyncWrites,
		MaxPixels:  c.MaxPixels,
	}
}

// Address returns the host:port the API server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a default configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Server.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./pgmstore.yaml"
	}

	// For Linux/macOS, use ~/.config/pgmstore/config.yaml
	configDir := filepath.Join(homeDir, ".config", "pgmstore")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
