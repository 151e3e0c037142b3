package ratelimit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisLimiter, *time.Time) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	rl := NewRedis(client, zerolog.New(io.Discard))
	now := time.Unix(1_700_000_000, 0)
	rl.nowFunc = func() time.Time { return now }
	t.Cleanup(func() { _ = rl.Close() })
	return rl, &now
}

func TestRedisAdmitAndCount(t *testing.T) {
	rl, _ := newTestRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := rl.Check(ctx, "u1", 10, 100)
		require.NoError(t, err)
		assert.Equal(t, i, res.MinuteCount)
		assert.Equal(t, i, res.HourCount)
	}

	u, err := rl.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.RequestsLastMinute)
	assert.Equal(t, 3, u.RequestsLastHour)
	assert.Equal(t, "redis", u.Backend)
}

func TestRedisMinuteDenialIsAtomic(t *testing.T) {
	rl, _ := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := rl.Check(ctx, "u1", 2, 100)
		require.NoError(t, err)
	}

	_, err := rl.Check(ctx, "u1", 2, 100)
	var le *LimitError
	require.True(t, errors.As(err, &le), "expected LimitError, got %v", err)
	assert.Equal(t, "minute", le.LimitType)
	assert.Equal(t, 2, le.Limit)
	assert.GreaterOrEqual(t, le.RetryAfter, 1)
	assert.LessOrEqual(t, le.RetryAfter, 60)

	// The denied request must not have been recorded in either window.
	u, err := rl.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.RequestsLastMinute)
	assert.Equal(t, 2, u.RequestsLastHour)
}

func TestRedisHourDenial(t *testing.T) {
	rl, now := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rl.Check(ctx, "u1", 100, 3)
		require.NoError(t, err)
		*now = now.Add(2 * time.Minute)
	}

	_, err := rl.Check(ctx, "u1", 100, 3)
	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "hour", le.LimitType)
	assert.LessOrEqual(t, le.RetryAfter, 3600)
}

func TestRedisWindowSlides(t *testing.T) {
	rl, now := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := rl.Check(ctx, "u1", 2, 100)
		require.NoError(t, err)
	}
	_, err := rl.Check(ctx, "u1", 2, 100)
	require.Error(t, err)

	*now = now.Add(61 * time.Second)
	_, err = rl.Check(ctx, "u1", 2, 100)
	assert.NoError(t, err, "expected admission after minute window slid")

	u, err := rl.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.RequestsLastMinute)
	assert.Equal(t, 3, u.RequestsLastHour)
}

func TestRedisSameSecondEventsStayDistinct(t *testing.T) {
	rl, _ := newTestRedis(t)
	ctx := context.Background()

	// Many admissions at the same wall clock second must each count.
	for i := 1; i <= 5; i++ {
		res, err := rl.Check(ctx, "u1", 10, 100)
		require.NoError(t, err)
		assert.Equal(t, i, res.MinuteCount)
	}
}

func TestRedisReset(t *testing.T) {
	rl, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := rl.Check(ctx, "u1", 1, 1)
	require.NoError(t, err)
	_, err = rl.Check(ctx, "u1", 1, 1)
	require.Error(t, err)

	require.NoError(t, rl.Reset(ctx, "u1"))
	_, err = rl.Check(ctx, "u1", 1, 1)
	assert.NoError(t, err)
}

func TestRedisAvailable(t *testing.T) {
	rl, _ := newTestRedis(t)
	assert.True(t, rl.Available(context.Background()))
}
