// Package config provides configuration loading and management for the application.
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Catalog modes
const (
	CatalogLive   = "live"
	CatalogStatic = "static"
	CatalogBoth   = "both"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Where pools come from: live, static or both
	CatalogMode string
	CatalogURL  string

	// Base URL of the risk fact gateway
	FactStoreURL string

	// Timeouts: per fact call, per request and per background persist
	FactTimeout    time.Duration
	RequestTimeout time.Duration
	PersistTimeout time.Duration

	MaxConcurrency int
	DefaultTopN    int

	// Fact store circuit breaker
	BreakerFailureThreshold int
	BreakerResetDelay       time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Path of the JSON engine config; empty means built-in defaults
	EngineConfigFile string

	// API keys by client name; empty disables the key check
	APIKeys map[string]string

	LogFormat string
	LogLevel  string
}

// Load creates a new Config from environment variables. A .env file in the
// working directory is read first when present; real environment variables win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Ignoring .env file: %v", err)
	}

	apiKeys := map[string]string{}
	if raw := os.Getenv("API_KEYS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &apiKeys); err != nil {
			logrus.Warnf("Invalid API_KEYS, key check disabled: %v", err)
		}
	}

	return Config{
		Port:                    GetEnvOrDefault("PORT", "8080"),
		CatalogMode:             strings.ToLower(GetEnvOrDefault("CATALOG_MODE", CatalogLive)),
		CatalogURL:              GetEnvOrDefault("CATALOG_URL", "https://yields.llama.fi"),
		FactStoreURL:            GetEnvOrDefault("FACT_STORE_URL", "http://localhost:5000/metta"),
		FactTimeout:             GetEnvAsDuration("FACT_TIMEOUT", 3*time.Second),
		RequestTimeout:          GetEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		PersistTimeout:          GetEnvAsDuration("PERSIST_TIMEOUT", 5*time.Second),
		MaxConcurrency:          GetEnvAsInt("MAX_CONCURRENCY", 8),
		DefaultTopN:             GetEnvAsInt("DEFAULT_TOP_N", 5),
		BreakerFailureThreshold: GetEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerResetDelay:       GetEnvAsDuration("BREAKER_RESET_DELAY", 30*time.Second),
		RateLimitRPS:            GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst:          GetEnvAsInt("RATE_LIMIT_BURST", 20),
		OtelEndpoint:            GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EngineConfigFile:        GetEnvOrDefault("ENGINE_CONFIG_FILE", ""),
		APIKeys:                 apiKeys,
		LogFormat:               strings.ToLower(GetEnvOrDefault("LOG_FORMAT", "text")),
		LogLevel:                strings.ToLower(GetEnvOrDefault("LOG_LEVEL", "info")),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Invalid integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.Warnf("Invalid float in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsList splits a comma separated environment variable, dropping empty items
func GetEnvAsList(key string) []string {
	value, exists := GetEnv(key)
	if !exists {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
