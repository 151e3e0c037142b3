package ratelimit

import (
	"context"
	"time"
)

// NoopLimiter admits every request and reports zero usage. It backs the
// bypass switch and the degraded mode used when Redis is unreachable.
type NoopLimiter struct {
	backend string
}

// NewNoop returns a limiter that never denies. The backend label shows up
// in usage reports ("bypass" or "none").
func NewNoop(backend string) *NoopLimiter {
	if backend == "" {
		backend = "none"
	}
	return &NoopLimiter{backend: backend}
}

// Check implements Limiter; it always admits.
func (n *NoopLimiter) Check(_ context.Context, _ string, perMinute, perHour int) (Result, error) {
	return Result{MinuteLimit: perMinute, HourLimit: perHour}, nil
}

// Usage implements Limiter with zero counts.
func (n *NoopLimiter) Usage(context.Context, string) (Usage, error) {
	return Usage{Timestamp: time.Now().UTC(), Backend: n.backend}, nil
}

// Reset implements Limiter.
func (n *NoopLimiter) Reset(context.Context, string) error { return nil }

// Available implements Limiter.
func (n *NoopLimiter) Available(context.Context) bool { return true }

// Close implements Limiter.
func (n *NoopLimiter) Close() error { return nil }
