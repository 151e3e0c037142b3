package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// New selects a limiter backend at startup.
//
// bypass forces the no-op limiter. A redisURL selects the distributed
// limiter, degrading to no-op with a warning when the store cannot be
// reached; an empty redisURL selects the in-memory limiter.
func New(ctx context.Context, redisURL string, bypass bool, log zerolog.Logger) Limiter {
	if bypass {
		log.Warn().Msg("rate limiting bypassed — all requests admitted")
		return NewNoop("bypass")
	}

	if redisURL == "" {
		log.Info().Msg("rate limiter using in-memory backend")
		return NewMemory(log)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid redis url — rate limiting disabled")
		return NewNoop("none")
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Warn().Err(err).Msg("redis unreachable — rate limiting disabled")
		return NewNoop("none")
	}

	log.Info().Msg("rate limiter using redis backend")
	return NewRedis(client, log)
}
