// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Extract ExtractConfig `mapstructure:"extract"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds local storage layout configuration. Tile archives live
// under <root>/tiles in the system and user subdirectories.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// TilesRoot returns the directory tile archives are stored under.
func (c *StorageConfig) TilesRoot() string {
	return filepath.Join(c.Root, "tiles")
}

// ExtractConfig holds remote extraction configuration.
type ExtractConfig struct {
	SourceURL string        `mapstructure:"source_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FetchConfig holds system-archive download configuration. The scheme of the
// download URL picks the transport; S3 and Azure credentials are only needed
// for s3:// and az:// URLs.
type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	S3      S3Config      `mapstructure:"s3"`
	Azure   AzureConfig   `mapstructure:"azure"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
}

// WatcherConfig holds storage watcher configuration.
type WatcherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Storage defaults
	viper.SetDefault("storage.root", "./data")

	// Extract defaults
	viper.SetDefault("extract.source_url", "")
	viper.SetDefault("extract.user_agent", "tilehaven")
	viper.SetDefault("extract.timeout", 10*time.Minute)

	// Fetch defaults
	viper.SetDefault("fetch.timeout", 15*time.Minute)

	// Watcher defaults
	viper.SetDefault("watcher.enabled", true)
	viper.SetDefault("watcher.debounce", 500*time.Millisecond)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("TILEHAVEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/tilehaven")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}
	if c.Watcher.Debounce <= 0 {
		return fmt.Errorf("watcher debounce must be positive: %s", c.Watcher.Debounce)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
