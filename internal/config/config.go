package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/geojson2mvt-go/internal/logger"
	"github.com/wegman-software/geojson2mvt-go/internal/source"
	"github.com/wegman-software/geojson2mvt-go/internal/transport"
)

// Config holds the process configuration
type Config struct {
	// Server settings
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Sources lists load request files applied when the server starts
	Sources []string `yaml:"sources"`
	// WatchSources reloads a source whenever its request file changes
	WatchSources bool `yaml:"watch_sources"`

	// Transport settings
	HTTP             transport.HTTPOptions `yaml:"http"`
	PostgresMaxConns int                   `yaml:"postgres_max_conns"`

	// Processing settings
	Workers int `yaml:"workers"`

	// Logging and metrics
	Debug           bool          `yaml:"debug"`
	LogFile         string        `yaml:"log_file"` // Empty disables file logging
	LogMaxSizeMB    int           `yaml:"log_max_size_mb"`
	LogMaxBackups   int           `yaml:"log_max_backups"`
	LogMaxAgeDays   int           `yaml:"log_max_age_days"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":8080",
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     2 * time.Minute,
		HTTP:             transport.DefaultHTTPOptions(),
		PostgresMaxConns: 4,
		Workers:          runtime.NumCPU(),
		LogMaxSizeMB:     100,
		LogMaxBackups:    3,
		LogMaxAgeDays:    28,
		MetricsInterval:  30 * time.Second,
	}
}

// LoadFile reads a YAML configuration file over the defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http max retries must not be negative")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.PostgresMaxConns < 1 {
		return fmt.Errorf("postgres max conns must be at least 1")
	}
	return nil
}

// LoggerOptions returns the logger settings
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Debug:      c.Debug,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}
}

// Transport builds the transport router for this configuration
func (c *Config) Transport() *transport.Router {
	r := transport.NewRouter(c.HTTP)
	r.Postgres = transport.NewPostgres(int32(c.PostgresMaxConns))
	return r
}

// LoadRequest reads a load request from a YAML file. Options left out keep
// their defaults.
func LoadRequest(path string) (*source.LoadParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read load request: %w", err)
	}

	var params source.LoadParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse load request YAML: %w", err)
	}
	if params.Source == "" {
		return nil, fmt.Errorf("load request %s names no source", path)
	}
	return &params, nil
}
