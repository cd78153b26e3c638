package config

import (
	"os"
	"strings"
	"time"
)

const (
	InterestBackendFile     = "file"
	InterestBackendRedis    = "redis"
	InterestBackendPostgres = "postgres"
	InterestBackendPebble   = "pebble"

	WriterLockNone  = "none"
	WriterLockMutex = "mutex"
	WriterLockLease = "lease"
)

type Config struct {
	HTTPAddr           string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	UpstreamBaseURL    string
	UpstreamTimeout    time.Duration
	InterestBackend    string
	InterestFile       string
	InterestPebbleDir  string
	InterestRedisKey   string
	InterestWriterLock string
	InterestLockTTL    time.Duration
	StrictInterests    bool
	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration
	IdempotencyLockTTL time.Duration
	RedisAddr          string
	PostgresDSN        string
	LogLevel           string
}

func Load() Config {
	return Config{
		HTTPAddr:           envOrDefault("GATEWAY_HTTP_ADDR", "localhost:5000"),
		ReadTimeout:        durationOrDefault("GATEWAY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       durationOrDefault("GATEWAY_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:        durationOrDefault("GATEWAY_IDLE_TIMEOUT", 60*time.Second),
		UpstreamBaseURL:    normalizeBaseURL(envOrDefault("HYLE_BLOCKCHAIN_URL", "http://localhost:4321/v1")),
		UpstreamTimeout:    durationOrDefault("GATEWAY_UPSTREAM_TIMEOUT", 0),
		InterestBackend:    choiceOrDefault("GATEWAY_INTEREST_BACKEND", InterestBackendFile, InterestBackendFile, InterestBackendRedis, InterestBackendPostgres, InterestBackendPebble),
		InterestFile:       envOrDefault("GATEWAY_INTEREST_FILE", "hashed-interests.json"),
		InterestPebbleDir:  envOrDefault("GATEWAY_INTEREST_PEBBLE_DIR", "hashed-interests.pebble"),
		InterestRedisKey:   envOrDefault("GATEWAY_INTEREST_REDIS_KEY", "zkhyle:hashed-interests"),
		InterestWriterLock: choiceOrDefault("GATEWAY_INTEREST_WRITER_LOCK", WriterLockNone, WriterLockNone, WriterLockMutex, WriterLockLease),
		InterestLockTTL:    durationOrDefault("GATEWAY_INTEREST_LOCK_TTL", 10*time.Second),
		StrictInterests:    boolOrDefault("GATEWAY_STRICT_INTERESTS", false),
		IdempotencyEnabled: boolOrDefault("GATEWAY_IDEMPOTENCY_ENABLED", false),
		IdempotencyTTL:     durationOrDefault("GATEWAY_IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyLockTTL: durationOrDefault("GATEWAY_IDEMPOTENCY_LOCK_TTL", 30*time.Second),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		PostgresDSN:        strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		LogLevel:           envOrDefault("GATEWAY_LOG_LEVEL", "info"),
	}
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func boolOrDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func choiceOrDefault(key, fallback string, allowed ...string) string {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return fallback
}

func normalizeBaseURL(value string) string {
	return strings.TrimSuffix(strings.TrimSpace(value), "/")
}
