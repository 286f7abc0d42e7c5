package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	RedisAddr         string
	RedisPassword     string
	RedisDBHSMKeys    int
	RedisDBAccessKeys int
	RedisDBRateLimit  int

	HSMIdentity         string
	KeyFreshnessSeconds int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		RedisAddr:              envDefault("REDIS_ADDR", "redis:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDBHSMKeys:         envIntDefault("REDIS_DB_HSM_KEYS", 0),
		RedisDBAccessKeys:      envIntDefault("REDIS_DB_ACCESS_KEYS", 1),
		RedisDBRateLimit:       envIntDefault("REDIS_DB_RATE_LIMIT", 2),
		HSMIdentity:            os.Getenv("HSM_IDENTITY"),
		KeyFreshnessSeconds:    envIntDefault("KEY_FRESHNESS_SECONDS", 44100),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

// FreshnessWindow is the maximum age of a key generation eligible for
// caching. The default of 44100 seconds is 12h15m.
func (c Config) FreshnessWindow() time.Duration {
	if c.KeyFreshnessSeconds <= 0 {
		return 0
	}
	return time.Duration(c.KeyFreshnessSeconds) * time.Second
}
