package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MemoryLimiter is a process-local sliding window limiter. Each user holds
// two ordered slices of admission timestamps, one per window.
type MemoryLimiter struct {
	mu      sync.Mutex
	users   map[string]*userWindows
	log     zerolog.Logger
	nowFunc func() time.Time
}

type userWindows struct {
	minute []time.Time
	hour   []time.Time
}

// NewMemory returns an in-memory limiter.
func NewMemory(log zerolog.Logger) *MemoryLimiter {
	return &MemoryLimiter{
		users:   make(map[string]*userWindows),
		log:     log.With().Str("component", "ratelimit").Logger(),
		nowFunc: time.Now,
	}
}

// Check implements Limiter. Admission and the double insert happen under
// one lock, so partial accounting cannot occur.
func (m *MemoryLimiter) Check(_ context.Context, userID string, perMinute, perHour int) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	uw, ok := m.users[userID]
	if !ok {
		uw = &userWindows{}
		m.users[userID] = uw
	}

	// Entries older than twice the window carry no information.
	uw.minute = prune(uw.minute, now.Add(-2*minuteWindow))
	uw.hour = prune(uw.hour, now.Add(-2*hourWindow))

	minuteCount := countSince(uw.minute, now.Add(-minuteWindow))
	hourCount := countSince(uw.hour, now.Add(-hourWindow))

	if minuteCount >= perMinute {
		retry := retryAfter(uw.minute, now, minuteWindow)
		m.log.Warn().
			Str("user_id", userID).
			Int("count", minuteCount).
			Int("limit", perMinute).
			Msg("rate limit exceeded (minute)")
		return Result{}, &LimitError{LimitType: "minute", Limit: perMinute, RetryAfter: retry}
	}

	if hourCount >= perHour {
		retry := retryAfter(uw.hour, now, hourWindow)
		m.log.Warn().
			Str("user_id", userID).
			Int("count", hourCount).
			Int("limit", perHour).
			Msg("rate limit exceeded (hour)")
		return Result{}, &LimitError{LimitType: "hour", Limit: perHour, RetryAfter: retry}
	}

	uw.minute = append(uw.minute, now)
	uw.hour = append(uw.hour, now)

	return Result{
		MinuteCount: minuteCount + 1,
		HourCount:   hourCount + 1,
		MinuteLimit: perMinute,
		HourLimit:   perHour,
	}, nil
}

// Usage implements Limiter. Counts are reported without incrementing.
func (m *MemoryLimiter) Usage(_ context.Context, userID string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	u := Usage{Timestamp: now.UTC(), Backend: "memory"}
	if uw, ok := m.users[userID]; ok {
		u.RequestsLastMinute = countSince(uw.minute, now.Add(-minuteWindow))
		u.RequestsLastHour = countSince(uw.hour, now.Add(-hourWindow))
	}
	return u, nil
}

// Reset implements Limiter.
func (m *MemoryLimiter) Reset(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.users, userID)
	m.mu.Unlock()
	m.log.Info().Str("user_id", userID).Msg("rate limit state reset")
	return nil
}

// Available implements Limiter. The in-memory store is always reachable.
func (m *MemoryLimiter) Available(context.Context) bool { return true }

// Close implements Limiter.
func (m *MemoryLimiter) Close() error { return nil }

// prune drops entries at or before the cutoff. Slices are append-ordered,
// so the survivors form a suffix.
func prune(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append(entries[:0], entries[i:]...)
}

func countSince(entries []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range entries {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// retryAfter computes seconds until the oldest in-window entry falls out.
func retryAfter(entries []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	for _, t := range entries {
		if t.After(cutoff) {
			secs := int(math.Ceil(t.Add(window).Sub(now).Seconds()))
			if secs < 1 {
				return 1
			}
			return secs
		}
	}
	return 1
}
