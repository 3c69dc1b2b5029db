/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Upstream bot API
	BotBaseURL  string // e.g. http://127.0.0.1:3000
	BotAPIToken string // optional bearer token for the bot API

	// Local history store
	DBBackend DatabaseBackend
	DBDSN     string

	// Surface authentication
	JWTSigningKey   string
	SurfaceTokenTTL time.Duration

	// Cross-process relay
	RelayBackend  string // memory, redis, nats
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	NATSToken     string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Local analysis playback starts blocked until a surface gesture
	// unless this is set, mirroring media autoplay policy.
	OutputUnlocked bool

	// Single-instance lock
	LockFile string
}

// Load reads .env plus environment variables, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	// A missing .env file is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("HUGINN_ENV", "development"),
		HTTPBind:    getEnv("HUGINN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("HUGINN_HTTP_PORT", 8090),

		BotBaseURL:  getEnv("HUGINN_BOT_BASE_URL", "http://127.0.0.1:3000"),
		BotAPIToken: getEnv("HUGINN_BOT_API_TOKEN", ""),

		DBBackend: DatabaseBackend(getEnv("HUGINN_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("HUGINN_DB_DSN", "huginn.db"),

		JWTSigningKey:   getEnv("HUGINN_JWT_SIGNING_KEY", ""),
		SurfaceTokenTTL: time.Duration(getEnvInt("HUGINN_SURFACE_TOKEN_TTL_HOURS", 24)) * time.Hour,

		RelayBackend:  getEnv("HUGINN_RELAY_BACKEND", "memory"),
		RedisAddr:     getEnvAny([]string{"HUGINN_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"HUGINN_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"HUGINN_REDIS_DB", "REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"HUGINN_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		NATSToken:     getEnvAny([]string{"HUGINN_NATS_TOKEN", "NATS_TOKEN"}, ""),

		TracingEnabled:    getEnvBool("HUGINN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("HUGINN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("HUGINN_TRACING_SAMPLE_RATE", 1.0),

		OutputUnlocked: getEnvBool("HUGINN_OUTPUT_UNLOCKED", false),

		LockFile: getEnv("HUGINN_LOCK_FILE", "huginn.lock"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("HUGINN_JWT_SIGNING_KEY must be provided")
	}

	if _, err := url.ParseRequestURI(cfg.BotBaseURL); err != nil {
		return nil, fmt.Errorf("HUGINN_BOT_BASE_URL %q is not a valid URL: %w", cfg.BotBaseURL, err)
	}

	switch cfg.RelayBackend {
	case "memory", "redis", "nats":
	default:
		return nil, fmt.Errorf("unsupported relay backend %q", cfg.RelayBackend)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if strings.EqualFold(cfg.JWTSigningKey, "changeme") {
			return nil, fmt.Errorf("HUGINN_JWT_SIGNING_KEY must be set to a non-default value in production")
		}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	return getEnvBoolAny([]string{key}, def)
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}
