package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter enforces sliding windows across processes. Window state
// lives in two sorted sets per user, scored by admission time; the whole
// admission check runs as a single Lua script so no partial accounting is
// possible under contention.
type RedisLimiter struct {
	client  *redis.Client
	log     zerolog.Logger
	nowFunc func() time.Time
}

// checkScript evicts expired entries, counts both windows, and either
// denies (recording nothing) or inserts the new timestamp into both sets.
// Scores are the admission time in fractional seconds (a float64, so about
// sub-microsecond resolution) and every event gets a unique member, so
// events within the same second are recorded individually. No jitter is
// added: events admitted at the same instant share a score.
// Reply shape: {status, minute_count, hour_count, retry_after, limit_type}.
var checkScript = redis.NewScript(`
local minute_key = KEYS[1]
local hour_key = KEYS[2]
local now = tonumber(ARGV[1])
local minute_limit = tonumber(ARGV[2])
local hour_limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', minute_key, 0, now - 60)
redis.call('ZREMRANGEBYSCORE', hour_key, 0, now - 3600)

local minute_count = redis.call('ZCARD', minute_key)
local hour_count = redis.call('ZCARD', hour_key)

if minute_count >= minute_limit then
  local retry = 1
  local oldest = redis.call('ZRANGE', minute_key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = math.max(1, math.ceil(tonumber(oldest[2]) + 60 - now))
  end
  return {'denied', minute_count, hour_count, retry, 'minute'}
end

if hour_count >= hour_limit then
  local retry = 1
  local oldest = redis.call('ZRANGE', hour_key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = math.max(1, math.ceil(tonumber(oldest[2]) + 3600 - now))
  end
  return {'denied', minute_count, hour_count, retry, 'hour'}
end

redis.call('ZADD', minute_key, now, member)
redis.call('ZADD', hour_key, now, member)
redis.call('EXPIRE', minute_key, 120)
redis.call('EXPIRE', hour_key, 7200)

return {'allowed', minute_count + 1, hour_count + 1, 0, ''}
`)

// NewRedis wraps an existing client. Callers own the client's lifecycle
// only until Close is called on the limiter.
func NewRedis(client *redis.Client, log zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		log:     log.With().Str("component", "ratelimit").Str("backend", "redis").Logger(),
		nowFunc: time.Now,
	}
}

func minuteKey(userID string) string { return "ratelimit:" + userID + ":minute" }
func hourKey(userID string) string   { return "ratelimit:" + userID + ":hour" }

// Check implements Limiter.
func (r *RedisLimiter) Check(ctx context.Context, userID string, perMinute, perHour int) (Result, error) {
	now := r.nowFunc()
	score := float64(now.UnixNano()) / 1e9

	reply, err := checkScript.Run(ctx, r.client,
		[]string{minuteKey(userID), hourKey(userID)},
		strconv.FormatFloat(score, 'f', -1, 64),
		perMinute,
		perHour,
		uuid.NewString(),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}

	fields, ok := reply.([]interface{})
	if !ok || len(fields) != 5 {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %v", reply)
	}

	status, _ := fields[0].(string)
	minuteCount := int(toInt64(fields[1]))
	hourCount := int(toInt64(fields[2]))

	if status == "denied" {
		limitType, _ := fields[4].(string)
		limit := perMinute
		if limitType == "hour" {
			limit = perHour
		}
		r.log.Warn().
			Str("user_id", userID).
			Str("limit_type", limitType).
			Int("limit", limit).
			Msg("rate limit exceeded")
		return Result{}, &LimitError{
			LimitType:  limitType,
			Limit:      limit,
			RetryAfter: int(toInt64(fields[3])),
		}
	}

	return Result{
		MinuteCount: minuteCount,
		HourCount:   hourCount,
		MinuteLimit: perMinute,
		HourLimit:   perHour,
	}, nil
}

// Usage implements Limiter. ZCOUNT reads the windows without writing.
func (r *RedisLimiter) Usage(ctx context.Context, userID string) (Usage, error) {
	now := r.nowFunc()
	score := float64(now.UnixNano()) / 1e9

	pipe := r.client.Pipeline()
	minuteCmd := pipe.ZCount(ctx, minuteKey(userID), fmt.Sprintf("(%f", score-60), "+inf")
	hourCmd := pipe.ZCount(ctx, hourKey(userID), fmt.Sprintf("(%f", score-3600), "+inf")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Usage{}, fmt.Errorf("rate limit usage: %w", err)
	}

	return Usage{
		RequestsLastMinute: int(minuteCmd.Val()),
		RequestsLastHour:   int(hourCmd.Val()),
		Timestamp:          now.UTC(),
		Backend:            "redis",
	}, nil
}

// Reset implements Limiter.
func (r *RedisLimiter) Reset(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, minuteKey(userID), hourKey(userID)).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	r.log.Info().Str("user_id", userID).Msg("rate limit state reset")
	return nil
}

// Available implements Limiter with a short ping.
func (r *RedisLimiter) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err() == nil
}

// Close implements Limiter.
func (r *RedisLimiter) Close() error { return r.client.Close() }

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
