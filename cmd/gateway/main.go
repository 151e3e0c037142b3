package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vektralab/embedgate/internal/gateway/auth"
	"github.com/vektralab/embedgate/internal/gateway/config"
	"github.com/vektralab/embedgate/internal/gateway/handler"
	"github.com/vektralab/embedgate/internal/gateway/keystore"
	"github.com/vektralab/embedgate/internal/gateway/ratelimit"
	"github.com/vektralab/embedgate/internal/gateway/router"
	"github.com/vektralab/embedgate/internal/gateway/upstream"
	"github.com/vektralab/embedgate/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	log.Info().
		Str("env", cfg.Env).
		Str("inference_url", cfg.InferenceURL).
		Int("rate_limit_minute", cfg.RateLimitMinute).
		Int("rate_limit_hour", cfg.RateLimitHour).
		Msg("gateway starting")

	keys := keystore.New(log)
	if err := seedDevKey(keys, cfg); err != nil {
		log.Fatal().Err(err).Msg("dev key setup failed")
	}

	limiter := ratelimit.New(context.Background(), cfg.RedisURL, cfg.BypassRateLimits, log)
	defer limiter.Close()

	client := upstream.New(cfg.InferenceURL)
	h := handler.New(client, limiter, log)
	authn := auth.New(keys, limiter, cfg.BypassRateLimits, log)

	r := router.New(router.Deps{
		Logger:        log,
		Handler:       h,
		Authenticator: authn,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  35 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

// seedDevKey registers the API_KEY from the environment, or generates one
// and prints it so a fresh deployment is immediately usable.
func seedDevKey(keys *keystore.Store, cfg *config.Config) error {
	devKey := cfg.APIKey
	generated := false
	if devKey == "" {
		var err error
		devKey, err = keystore.Generate("sk_dev")
		if err != nil {
			return err
		}
		generated = true
	}

	keys.Add(devKey, "dev_user", "Development API Key", cfg.RateLimitMinute, cfg.RateLimitHour, nil)

	if generated {
		fmt.Printf("\n%s\n", divider)
		fmt.Printf("Development API Key: %s\n", devKey)
		fmt.Printf("%s\n\n", divider)
	}
	return nil
}

const divider = "============================================================"
