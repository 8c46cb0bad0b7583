// Package config loads refsync settings from .refsync/config.json and
// REFSYNC_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Dir is the per-workspace settings directory.
const Dir = ".refsync"

// Config represents the complete refsync configuration.
type Config struct {
	DBPath     string        `json:"dbPath" mapstructure:"dbPath"`
	Workers    int           `json:"workers" mapstructure:"workers"`
	Parallel   bool          `json:"parallel" mapstructure:"parallel"`
	ScriptsDir string        `json:"scriptsDir" mapstructure:"scriptsDir"`
	Logging    LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DBPath:   filepath.Join(Dir, "refsync.db"),
		Workers:  0,
		Parallel: true,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from <root>/.refsync/config.json, with
// REFSYNC_* environment variables taking precedence (REFSYNC_LOGGING_LEVEL
// for logging.level). A missing file yields the defaults.
func LoadConfig(root string) (*Config, error) {
	return load(root, "")
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	return load("", path)
}

func load(root, file string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("dbPath", def.DBPath)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("parallel", def.Parallel)
	v.SetDefault("scriptsDir", def.ScriptsDir)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	v.SetEnvPrefix("REFSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(filepath.Join(root, Dir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to <root>/.refsync/config.json.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return &ConfigError{Field: "dbPath", Message: "must not be empty"}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Message: "must not be negative"}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be text or json"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
