package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates that the provided configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks the configuration for structural errors. Malformed
// configuration aborts startup; it is the only class of error allowed to.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidConfig)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, cfg.Server.Port)
	}

	if cfg.Rotation.Cooldown.Duration() <= 0 {
		return fmt.Errorf("%w: rotation cooldown must be positive", ErrInvalidConfig)
	}

	if cfg.Rotation.SettleDelay.Duration() < 0 {
		return fmt.Errorf("%w: rotation settle delay must not be negative", ErrInvalidConfig)
	}

	if cfg.Rotation.LedgerCap <= 0 {
		return fmt.Errorf("%w: rotation ledger capacity must be positive", ErrInvalidConfig)
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("%w: rate limit requestsPerSecond must be positive", ErrInvalidConfig)
		}
		if cfg.RateLimit.Burst <= 0 {
			return fmt.Errorf("%w: rate limit burst must be positive", ErrInvalidConfig)
		}
	}

	if cfg.Breaker.Enabled {
		if cfg.Breaker.Threshold <= 0 {
			return fmt.Errorf("%w: breaker threshold must be positive", ErrInvalidConfig)
		}
		if cfg.Breaker.Timeout.Duration() <= 0 {
			return fmt.Errorf("%w: breaker timeout must be positive", ErrInvalidConfig)
		}
	}

	if cfg.Pool.RemoteURL == "" && cfg.Pool.RefreshInterval.Duration() > 0 {
		return fmt.Errorf("%w: pool refreshInterval requires remoteURL", ErrInvalidConfig)
	}

	return nil
}
