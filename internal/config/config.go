// Package config loads classtrace configuration from defaults, an optional YAML
// file and the environment (in that order of precedence, lowest first).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the complete configuration for the agent and the replay tool.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Sink     SinkConfig     `koanf:"sink"`
	Spool    SpoolConfig    `koanf:"spool"`
	Tracker  TrackerConfig  `koanf:"tracker"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the sink HTTP server.
type ServerConfig struct {
	Address         string        `koanf:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig configures the sqlite store behind the sink.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// SinkConfig configures the client side of the upload path.
type SinkConfig struct {
	BaseURL         string        `koanf:"base_url"`
	Timeout         time.Duration `koanf:"timeout"`
	BatchSize       int           `koanf:"batch_size"`
	MaxAttempts     int           `koanf:"max_attempts"`
	FlushInterval   time.Duration `koanf:"flush_interval"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerOpenFor  time.Duration `koanf:"breaker_open_for"`
}

// SpoolConfig configures the dead-letter spool for undeliverable interactions.
type SpoolConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// TrackerConfig configures the capture layer.
type TrackerConfig struct {
	ScrollThrottle time.Duration `koanf:"scroll_throttle"`
	HoverTTL       time.Duration `koanf:"hover_ttl"`
	TickInterval   time.Duration `koanf:"tick_interval"`
	RecentActions  int           `koanf:"recent_actions"`
}

// LoggingConfig mirrors logging.Config for file/env loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1:3001",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"http://localhost:5173"},
			RateLimit:       300,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path: "classtrace.db",
		},
		Sink: SinkConfig{
			BaseURL:         "http://127.0.0.1:3001",
			Timeout:         10 * time.Second,
			BatchSize:       10,
			MaxAttempts:     5,
			FlushInterval:   30 * time.Second,
			BreakerFailures: 5,
			BreakerOpenFor:  30 * time.Second,
		},
		Spool: SpoolConfig{
			Enabled: false,
			Dir:     "classtrace-spool",
		},
		Tracker: TrackerConfig{
			ScrollThrottle: 100 * time.Millisecond,
			HoverTTL:       time.Minute,
			TickInterval:   time.Second,
			RecentActions:  20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate reports the first problem that would prevent startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address must not be empty"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if u, err := url.Parse(c.Sink.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("sink.base_url %q is not an absolute URL", c.Sink.BaseURL))
	}
	if c.Sink.BatchSize <= 0 {
		errs = append(errs, errors.New("sink.batch_size must be positive"))
	}
	if c.Sink.MaxAttempts <= 0 {
		errs = append(errs, errors.New("sink.max_attempts must be positive"))
	}
	if c.Sink.Timeout <= 0 {
		errs = append(errs, errors.New("sink.timeout must be positive"))
	}
	if c.Spool.Enabled && c.Spool.Dir == "" {
		errs = append(errs, errors.New("spool.dir is required when the spool is enabled"))
	}
	if c.Tracker.TickInterval <= 0 {
		errs = append(errs, errors.New("tracker.tick_interval must be positive"))
	}
	return errors.Join(errs...)
}
