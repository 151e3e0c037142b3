// Package config holds gateway configuration loaded from flags and
// environment variables.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all gateway configuration values.
type Config struct {
	// Server
	Host            string
	Port            int
	Env             string
	GracefulTimeout time.Duration

	// Upstream inference service
	InferenceURL string

	// Rate limiting
	RateLimitMinute  int
	RateLimitHour    int
	RedisURL         string
	BypassRateLimits bool

	// Seed key for development; generated if empty.
	APIKey string

	// Worker count accepted on the command line; the gateway itself does
	// not read it.
	Workers int

	// Body limits
	MaxBodyBytes int64

	// Logging
	LogLevel string
}

// Load parses CLI flags with environment-variable fallbacks. A .env file,
// if present, is loaded by the caller before Load runs.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.Host, "host", getEnv("GATEWAY_HOST", "0.0.0.0"), "host to bind the server to")
	fs.IntVar(&cfg.Port, "port", getEnvInt("GATEWAY_PORT", 8000), "port to bind the server to")
	fs.StringVar(&cfg.InferenceURL, "inference-url", getEnv("INFERENCE_URL", "http://localhost:8001"), "URL of the inference service")
	fs.IntVar(&cfg.RateLimitMinute, "rate-limit-minute", getEnvInt("RATE_LIMIT_MINUTE", 60), "default requests per minute rate limit")
	fs.IntVar(&cfg.RateLimitHour, "rate-limit-hour", getEnvInt("RATE_LIMIT_HOUR", 1000), "default requests per hour rate limit")
	fs.StringVar(&cfg.RedisURL, "redis-url", getEnv("REDIS_URL", ""), "redis URL for distributed rate limiting (empty for in-memory)")
	fs.BoolVar(&cfg.BypassRateLimits, "bypass-rate-limits", getEnvBool("BYPASS_RATE_LIMITS", false), "disable rate limiting")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("GATEWAY_WORKERS", 1), "number of workers (accepted for compatibility; not used by the gateway)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Env = getEnv("ENV", "development")
	cfg.GracefulTimeout = time.Duration(getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)) * time.Second
	cfg.APIKey = getEnv("API_KEY", "")
	cfg.MaxBodyBytes = int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 1*1024*1024))
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
