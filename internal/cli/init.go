// Package cli holds the start-up helpers shared by the commands and the
// interactive session used by cmd/impact.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"impact/internal/backend"
	"impact/internal/config"
	"impact/internal/log"
	"impact/internal/recalc"
)

// SetupLogger builds the process logger at the given level and makes it
// the slog default. An unknown level falls back to info.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured store.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	return result
}

// NewRecalculator returns the HTTP client for the recompute endpoint, or a
// recalculator that always fails when no endpoint is configured.
func NewRecalculator(cfg *config.Config, logger *log.Logger) recalc.Recalculator {
	if cfg.RecalcEndpoint == "" {
		logger.Warn("RECALC_ENDPOINT not set, recalculation disabled")
		return recalc.Disabled{}
	}
	var tokens recalc.TokenSource = recalc.StaticToken("")
	if cfg.RecalcTokenSecret != "" {
		tokens = recalc.NewJWTSource(cfg.RecalcTokenSecret, cfg.RecalcTokenTTL)
	} else {
		logger.Warn("RECALC_TOKEN_SECRET not set, recompute requests will fail as unauthenticated")
	}
	return recalc.NewHTTPClient(cfg.RecalcEndpoint, tokens, cfg.RecalcTimeout, logger)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
