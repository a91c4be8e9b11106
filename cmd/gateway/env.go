package main

import (
	"os"
	"strconv"

	"github.com/vyrodovalexey/avproxygw/internal/config"
)

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// applyEnvOverrides layers environment variables over the loaded
// configuration. Environment wins over the file for the settings an
// operator most often needs to change per deployment.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("GATEWAY_PROXIES"); v != "" {
		cfg.Pool.Static = v
	}
	if v := os.Getenv("GATEWAY_PROXIES_FILE"); v != "" {
		cfg.Pool.File = v
	}
	if v := os.Getenv("GATEWAY_PROXIES_URL"); v != "" {
		cfg.Pool.RemoteURL = v
	}
	if v := os.Getenv("GATEWAY_ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("GATEWAY_LISTEN_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("GATEWAY_LISTEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
