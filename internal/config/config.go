// Package config provides configuration loading and validation for the
// gateway.
package config

import "time"

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Admin     AdminConfig     `yaml:"admin"`
	Rotation  RotationConfig  `yaml:"rotation"`
	Pool      PoolConfig      `yaml:"pool"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string   `yaml:"address"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
	IdleTimeout  Duration `yaml:"idleTimeout"`
}

// AdminConfig guards the administrative surface. An empty token disables it.
type AdminConfig struct {
	// Token is the bearer secret for /api/proxies. It may be a bcrypt hash
	// (recognized by its $2 prefix) or a plain secret compared in constant
	// time. Empty disables the admin surface.
	Token string `yaml:"token"`
}

// RotationConfig holds the rotation guard settings.
type RotationConfig struct {
	// Cooldown is the minimum time between two successful rotations per
	// identity.
	Cooldown Duration `yaml:"cooldown"`

	// SettleDelay is how long the rotation lock is held after a successful
	// rotation before auto-release.
	SettleDelay Duration `yaml:"settleDelay"`

	// LedgerCap bounds the per-identity connection ledger.
	LedgerCap int `yaml:"ledgerCap"`
}

// PoolConfig describes where the proxy pool comes from.
type PoolConfig struct {
	// Static is a comma-separated host:port:user:pass list.
	Static string `yaml:"static"`

	// File is a path to a proxy list file, one host:port:user:pass per
	// line. When set, the file is watched and the pool hot-reloaded.
	File string `yaml:"file"`

	// RemoteURL is a JSON endpoint returning the full descriptor list.
	RemoteURL string `yaml:"remoteURL"`

	// RefreshInterval is how often the remote list is re-fetched.
	// Zero disables periodic refresh.
	RefreshInterval Duration `yaml:"refreshInterval"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond"`
	Burst             int  `yaml:"burst"`
}

// BreakerConfig holds per-upstream circuit breaker settings.
type BreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Timeout   Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		Rotation: RotationConfig{
			Cooldown:    Duration(6 * time.Second),
			SettleDelay: Duration(2 * time.Second),
			LedgerCap:   100,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             20,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Timeout:   Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
