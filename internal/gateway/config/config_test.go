package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/vektralab/embedgate/internal/gateway/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Port)
	}
	if cfg.InferenceURL != "http://localhost:8001" {
		t.Fatalf("unexpected inference url %s", cfg.InferenceURL)
	}
	if cfg.RateLimitMinute != 60 || cfg.RateLimitHour != 1000 {
		t.Fatalf("unexpected default limits %d/%d", cfg.RateLimitMinute, cfg.RateLimitHour)
	}
	if cfg.BypassRateLimits {
		t.Fatal("bypass must default to off")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("BYPASS_RATE_LIMITS", "true")
	os.Setenv("GATEWAY_GRACEFUL_TIMEOUT_SEC", "5")
	defer func() {
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("BYPASS_RATE_LIMITS")
		os.Unsetenv("GATEWAY_GRACEFUL_TIMEOUT_SEC")
	}()

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Fatalf("expected REDIS_URL to be loaded, got %s", cfg.RedisURL)
	}
	if !cfg.BypassRateLimits {
		t.Fatal("expected BYPASS_RATE_LIMITS to be loaded")
	}
	if cfg.GracefulTimeout != 5*time.Second {
		t.Fatalf("expected 5s graceful timeout, got %s", cfg.GracefulTimeout)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	os.Setenv("GATEWAY_PORT", "9999")
	defer os.Unsetenv("GATEWAY_PORT")

	cfg, err := config.Load([]string{"-port", "8080", "-rate-limit-minute", "5"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected flag to win, got port %d", cfg.Port)
	}
	if cfg.RateLimitMinute != 5 {
		t.Fatalf("expected rate limit 5, got %d", cfg.RateLimitMinute)
	}
}

func TestAddr(t *testing.T) {
	cfg, err := config.Load([]string{"-host", "127.0.0.1", "-port", "8080"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
}
