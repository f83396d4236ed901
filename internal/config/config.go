// Package config manages the daemon configuration with the usual
// precedence: environment variables over the config file over built-in
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/relaylens/relaylens/internal/backoff"
	"github.com/relaylens/relaylens/internal/health"
	"github.com/relaylens/relaylens/internal/outbox"
)

// Config is the full application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Relay        RelayConfig        `mapstructure:"relay"`
	Reconnection ReconnectionConfig `mapstructure:"reconnection"`
	Heartbeat    HeartbeatConfig    `mapstructure:"heartbeat"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig configures the local API listener.
type ServerConfig struct {
	// Listen is the local API address. Keep it on loopback; the API is
	// unauthenticated.
	Listen string `mapstructure:"listen"`
}

// RelayConfig configures the upstream relay connection.
type RelayConfig struct {
	// URL is the relay WebSocket address (ws:// or wss://).
	URL string `mapstructure:"url"`
	// Username and Password are sent as HTTP Basic credentials on the
	// WebSocket handshake.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Topics are subscribed automatically after every successful connect.
	Topics []string `mapstructure:"topics"`
	// AutoConnect starts the connection on daemon startup instead of
	// waiting for an explicit connect call.
	AutoConnect bool `mapstructure:"auto_connect"`
	// ClientID identifies the session to the relay. A stable random ID is
	// generated when empty.
	ClientID string    `mapstructure:"client_id"`
	TLS      TLSConfig `mapstructure:"tls"`
}

// TLSConfig configures TLS for wss:// relays.
type TLSConfig struct {
	// CAFile is a PEM bundle of additional trusted roots.
	CAFile string `mapstructure:"ca_file"`
	// CertFile and KeyFile enable client certificate authentication.
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	// InsecureSkipVerify disables server certificate verification. Never
	// use outside local testing.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// ReconnectionConfig tunes the reconnection policy.
type ReconnectionConfig struct {
	// MaxAttempts bounds consecutive failed attempts before giving up.
	MaxAttempts int `mapstructure:"max_attempts"`
	// BaseDelayMs is the first retry delay in milliseconds.
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	// MaxDelayMs caps the exponential growth in milliseconds.
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// HeartbeatConfig tunes the liveness probe.
type HeartbeatConfig struct {
	// IntervalSeconds is the ping interval; a link with no pong for twice
	// this long is declared dead.
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// OutboxConfig tunes the offline send buffer.
type OutboxConfig struct {
	// Capacity bounds the number of buffered frames; the oldest is evicted
	// when full.
	Capacity int `mapstructure:"capacity"`
	// TTLSeconds drops frames older than this at drain time.
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is json or text.
	Format string `mapstructure:"format"`
	// File is the log file path; empty logs to stdout.
	File string `mapstructure:"file"`
}

// Load unmarshals the configuration bound in viper.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.Relay.TLS.CAFile = expandPath(cfg.Relay.TLS.CAFile)
	cfg.Relay.TLS.CertFile = expandPath(cfg.Relay.TLS.CertFile)
	cfg.Relay.TLS.KeyFile = expandPath(cfg.Relay.TLS.KeyFile)

	return &cfg, nil
}

// SetDefaults registers the built-in defaults on viper.
func SetDefaults() {
	viper.SetDefault("server.listen", "127.0.0.1:8189")
	viper.SetDefault("relay.auto_connect", true)
	viper.SetDefault("reconnection.max_attempts", backoff.DefaultMaxAttempts)
	viper.SetDefault("reconnection.base_delay_ms", int(backoff.DefaultBaseDelay/time.Millisecond))
	viper.SetDefault("reconnection.max_delay_ms", int(backoff.DefaultMaxDelay/time.Millisecond))
	viper.SetDefault("heartbeat.interval_seconds", int(health.DefaultInterval/time.Second))
	viper.SetDefault("outbox.capacity", outbox.DefaultCapacity)
	viper.SetDefault("outbox.ttl_seconds", int(outbox.DefaultTTL/time.Second))
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Relay.URL == "" {
		return fmt.Errorf("relay.url is required (ws:// or wss://)")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (one of debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (one of json, text)", c.Logging.Format)
	}

	if c.Reconnection.MaxAttempts < 0 {
		return fmt.Errorf("reconnection.max_attempts must be >= 0")
	}
	if c.Reconnection.BaseDelayMs < 0 || c.Reconnection.MaxDelayMs < 0 {
		return fmt.Errorf("reconnection delays must be >= 0")
	}
	if c.Reconnection.MaxDelayMs > 0 && c.Reconnection.BaseDelayMs > c.Reconnection.MaxDelayMs {
		return fmt.Errorf("reconnection.base_delay_ms must not exceed max_delay_ms")
	}
	if c.Outbox.Capacity < 0 {
		return fmt.Errorf("outbox.capacity must be >= 0")
	}
	if (c.Relay.TLS.CertFile == "") != (c.Relay.TLS.KeyFile == "") {
		return fmt.Errorf("relay.tls cert_file and key_file must be set together")
	}

	return nil
}

// BaseDelay returns the configured first retry delay.
func (r ReconnectionConfig) BaseDelay() time.Duration {
	if r.BaseDelayMs <= 0 {
		return backoff.DefaultBaseDelay
	}
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the configured retry delay cap.
func (r ReconnectionConfig) MaxDelay() time.Duration {
	if r.MaxDelayMs <= 0 {
		return backoff.DefaultMaxDelay
	}
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Interval returns the configured heartbeat interval.
func (h HeartbeatConfig) Interval() time.Duration {
	if h.IntervalSeconds <= 0 {
		return health.DefaultInterval
	}
	return time.Duration(h.IntervalSeconds) * time.Second
}

// TTL returns the configured outbox frame lifetime.
func (o OutboxConfig) TTL() time.Duration {
	if o.TTLSeconds <= 0 {
		return outbox.DefaultTTL
	}
	return time.Duration(o.TTLSeconds) * time.Second
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// EnsureConfigDir creates the config directory when missing.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "relaylens")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "relaylens", "config.yaml")
}
