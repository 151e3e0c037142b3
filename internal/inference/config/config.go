// Package config holds inference server configuration loaded from flags
// and environment variables.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all inference server configuration values.
type Config struct {
	Host            string
	Port            int
	Env             string
	GracefulTimeout time.Duration

	// Batching
	MaxBatchSize int
	BatchTimeout time.Duration
	NumWorkers   int
	QueueCap     int
	NoBatching   bool

	// Model selection: "hashing" or "dummy".
	Model        string
	EmbeddingDim int

	// Logging
	LogLevel string
}

// Load parses CLI flags with environment-variable fallbacks.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("inference", flag.ContinueOnError)

	cfg := &Config{}
	var batchTimeoutMS float64

	fs.StringVar(&cfg.Host, "host", getEnv("INFERENCE_HOST", "0.0.0.0"), "host to bind the server to")
	fs.IntVar(&cfg.Port, "port", getEnvInt("INFERENCE_PORT", 8001), "port to bind the server to")
	fs.IntVar(&cfg.MaxBatchSize, "max-batch-size", getEnvInt("MAX_BATCH_SIZE", 32), "maximum batch size for dynamic batching")
	fs.Float64Var(&batchTimeoutMS, "batch-timeout", float64(getEnvInt("BATCH_TIMEOUT_MS", 10)), "maximum wait (milliseconds) before a partial batch is processed")
	fs.IntVar(&cfg.NumWorkers, "num-batching-workers", getEnvInt("NUM_BATCHING_WORKERS", 2), "number of batch collector workers")
	fs.BoolVar(&cfg.NoBatching, "no-batching", getEnvBool("NO_BATCHING", false), "process each request as a singleton batch")
	fs.StringVar(&cfg.Model, "model", getEnv("EMBEDDING_MODEL", "hashing"), "embedding model backend (hashing or dummy)")
	fs.IntVar(&cfg.EmbeddingDim, "embedding-dim", getEnvInt("EMBEDDING_DIM", 384), "embedding vector dimension")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.BatchTimeout = time.Duration(batchTimeoutMS * float64(time.Millisecond))
	cfg.Env = getEnv("ENV", "development")
	cfg.GracefulTimeout = time.Duration(getEnvInt("INFERENCE_GRACEFUL_TIMEOUT_SEC", 15)) * time.Second
	cfg.QueueCap = getEnvInt("INFERENCE_QUEUE_CAP", 4096)
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
