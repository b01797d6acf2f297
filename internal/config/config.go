package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"impact/internal/log"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	TransportInline = "inline"
	TransportAMQP   = "amqp"
)

type Config struct {
	// Persistence
	DataBackend  string
	SQLiteDBPath string

	// Session
	UserID string

	// Recalculation service
	RecalcEndpoint    string
	RecalcTokenSecret string
	RecalcTokenTTL    time.Duration
	RecalcTimeout     time.Duration
	RecalcTransport   string
	RecalcQueueSize   int
	RecalcWorkers     int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Impact behaviour
	StalenessThreshold time.Duration
	UndoWindow         time.Duration
	AggregateCacheTTL  time.Duration
	AggregateCacheSize int

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/impact.db"),

		UserID: getEnv("IMPACT_USER_ID", ""),

		RecalcEndpoint:    getEnv("RECALC_ENDPOINT", ""),
		RecalcTokenSecret: getEnv("RECALC_TOKEN_SECRET", ""),
		RecalcTokenTTL:    getEnvDuration("RECALC_TOKEN_TTL", 15*time.Minute),
		RecalcTimeout:     getEnvDuration("RECALC_TIMEOUT", 10*time.Second),
		RecalcTransport:   getEnv("RECALC_TRANSPORT", TransportInline),
		RecalcQueueSize:   getEnvInt("RECALC_QUEUE_SIZE", 64),
		RecalcWorkers:     getEnvInt("RECALC_WORKERS", 2),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "impact"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "impact_recalc"),

		StalenessThreshold: getEnvDuration("STALENESS_THRESHOLD", 6*time.Hour),
		UndoWindow:         getEnvDuration("UNDO_WINDOW", 10*time.Second),
		AggregateCacheTTL:  getEnvDuration("AGGREGATE_CACHE_TTL", 30*time.Second),
		AggregateCacheSize: getEnvInt("AGGREGATE_CACHE_SIZE", 128),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	validBackends := []string{BackendMemory, BackendSQLite}
	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate recalculation endpoint if provided
	if c.RecalcEndpoint != "" {
		if u, err := url.Parse(c.RecalcEndpoint); err != nil {
			errors = append(errors, fmt.Sprintf("invalid recalc endpoint '%s': %v", c.RecalcEndpoint, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid recalc endpoint scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}

	if c.RecalcTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid recalc timeout %v: must be positive", c.RecalcTimeout))
	}
	if c.RecalcTokenSecret != "" && c.RecalcTokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recalc token ttl %v: must be at least 1 minute", c.RecalcTokenTTL))
	}

	// Validate queue configuration
	if c.RecalcQueueSize < 1 || c.RecalcQueueSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid recalc queue size %d: must be between 1 and 10000", c.RecalcQueueSize))
	}
	if c.RecalcWorkers < 1 || c.RecalcWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid recalc workers %d: must be between 1 and 64", c.RecalcWorkers))
	}

	// Validate transport
	validTransports := []string{TransportInline, TransportAMQP}
	if !contains(validTransports, c.RecalcTransport) {
		errors = append(errors, fmt.Sprintf("invalid recalc transport '%s': must be one of %v", c.RecalcTransport, validTransports))
	}
	if c.RecalcTransport == TransportAMQP && c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required when using amqp recalc transport")
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate impact timings
	if c.StalenessThreshold < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid staleness threshold %v: must be at least 1 minute", c.StalenessThreshold))
	}
	if c.UndoWindow < time.Second || c.UndoWindow > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid undo window %v: must be between 1 second and 5 minutes", c.UndoWindow))
	}
	if c.AggregateCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid aggregate cache ttl %v: must not be negative", c.AggregateCacheTTL))
	}
	if c.AggregateCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid aggregate cache size %d: must be at least 1", c.AggregateCacheSize))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
