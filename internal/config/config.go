// Package config handles councild configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./councild.yaml, ~/.config/councild/config.yaml, /etc/councild/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"councild.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "councild", "config.yaml"))
	}

	paths = append(paths, "/etc/councild/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all councild configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	Gemini    GeminiConfig   `yaml:"gemini"`
	Snapshot  SnapshotConfig `yaml:"snapshot"`
	DataDir   string         `yaml:"data_dir"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // "text" (default) or "json"
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GeminiConfig defines the text-generation provider settings.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. Supports ${ENV} expansion.
	APIKey string `yaml:"api_key"`
	// Model is the generation model name (default: gemini-2.5-pro).
	Model string `yaml:"model"`
	// Mock replaces the live API with canned responses. Useful for
	// development and UI work without burning quota.
	Mock bool `yaml:"mock"`
}

// SnapshotConfig defines session snapshot persistence settings.
type SnapshotConfig struct {
	// DebounceSeconds is how long after the last state change the
	// session table is written to disk. Bursts of changes coalesce
	// into one write. Default: 5.
	DebounceSeconds int `yaml:"debounce_seconds"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:   ListenConfig{Port: 3001},
		Gemini:   GeminiConfig{Model: "gemini-2.5-pro"},
		Snapshot: SnapshotConfig{DebounceSeconds: 5},
		DataDir:  "data",
	}
}

// Validate checks the configuration for values that would fail later in
// a less obvious place.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if !c.Gemini.Mock && c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required unless gemini.mock is true")
	}
	if c.Snapshot.DebounceSeconds < 0 {
		return fmt.Errorf("snapshot.debounce_seconds must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}
