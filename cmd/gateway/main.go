// Package main is the entry point for the proxy gateway.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/config"
	"github.com/vyrodovalexey/avproxygw/internal/gateway"
	"github.com/vyrodovalexey/avproxygw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	gw, err := gateway.New(cfg, logger, gateway.WithVersion(version))
	if err != nil {
		logger.Fatal("failed to create gateway", zap.Error(err))
	}

	runGateway(gw, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avproxygw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) *zap.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadAndValidateConfig loads the configuration, applies environment
// overrides and validates the result.
func loadAndValidateConfig(configPath string, logger *zap.Logger) *config.Config {
	logger.Info("starting avproxygw",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatal("failed to load configuration", zap.Error(err))
		}
		// No config file: run entirely from defaults plus environment.
		logger.Info("configuration file not found, using defaults", zap.String("path", configPath))
		cfg = config.Default()
	}

	applyEnvOverrides(cfg)

	if err := config.Validate(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("cooldown", cfg.Rotation.Cooldown.Duration()),
		zap.Bool("admin_enabled", cfg.Admin.Token != ""),
		zap.Bool("remote_pool", cfg.Pool.RemoteURL != ""),
	)

	return cfg
}
