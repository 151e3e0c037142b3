package ratelimit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestMemory(now *time.Time) *MemoryLimiter {
	m := NewMemory(zerolog.New(io.Discard))
	m.nowFunc = func() time.Time { return *now }
	return m
}

func TestMemoryAdmitsUnderLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestMemory(&now)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := m.Check(ctx, "u1", 10, 100)
		if err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
		if res.MinuteCount != i || res.HourCount != i {
			t.Fatalf("request %d: got counts %d/%d", i, res.MinuteCount, res.HourCount)
		}
	}
}

func TestMemoryMinuteLimitTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestMemory(&now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.Check(ctx, "u1", 2, 100); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		now = now.Add(100 * time.Millisecond)
	}

	_, err := m.Check(ctx, "u1", 2, 100)
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.LimitType != "minute" || le.Limit != 2 {
		t.Fatalf("unexpected error fields: %+v", le)
	}
	if le.RetryAfter < 1 || le.RetryAfter > 60 {
		t.Fatalf("retry_after out of range: %d", le.RetryAfter)
	}

	// Denied requests record nothing.
	u, _ := m.Usage(ctx, "u1")
	if u.RequestsLastMinute != 2 {
		t.Fatalf("denied request was recorded: count %d", u.RequestsLastMinute)
	}
}

func TestMemoryHourLimitTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestMemory(&now)
	ctx := context.Background()

	// Spread admissions so the minute window never fills.
	for i := 0; i < 3; i++ {
		if _, err := m.Check(ctx, "u1", 100, 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		now = now.Add(2 * time.Minute)
	}

	_, err := m.Check(ctx, "u1", 100, 3)
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.LimitType != "hour" {
		t.Fatalf("expected hour limit, got %q", le.LimitType)
	}
	if le.RetryAfter < 1 || le.RetryAfter > 3600 {
		t.Fatalf("retry_after out of range: %d", le.RetryAfter)
	}
}

func TestMemoryWindowSlides(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestMemory(&now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.Check(ctx, "u1", 2, 100); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := m.Check(ctx, "u1", 2, 100); err == nil {
		t.Fatal("expected denial at limit")
	}

	// After the window passes, requests are admitted again.
	now = now.Add(61 * time.Second)
	if _, err := m.Check(ctx, "u1", 2, 100); err != nil {
		t.Fatalf("expected admission after window slide, got %v", err)
	}
}

func TestMemoryUsageDoesNotIncrement(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestMemory(&now)
	ctx := context.Background()

	if _, err := m.Check(ctx, "u1", 10, 100); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		u, err := m.Usage(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if u.RequestsLastMinute != 1 || u.RequestsLastHour != 1 {
			t.Fatalf("usage mutated state: %+v", u)
		}
	}
	if u, _ := m.Usage(ctx, "unknown"); u.RequestsLastMinute != 0 {
		t.Fatalf("expected zero usage for unknown user, got %+v", u)
	}
}

func TestMemoryReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestMemory(&now)
	ctx := context.Background()

	if _, err := m.Check(ctx, "u1", 1, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Check(ctx, "u1", 1, 1); err == nil {
		t.Fatal("expected denial")
	}
	if err := m.Reset(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Check(ctx, "u1", 1, 1); err != nil {
		t.Fatalf("expected admission after reset, got %v", err)
	}
}

func TestMemoryUsersIsolated(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestMemory(&now)
	ctx := context.Background()

	if _, err := m.Check(ctx, "u1", 1, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Check(ctx, "u1", 1, 100); err == nil {
		t.Fatal("expected denial for u1")
	}
	if _, err := m.Check(ctx, "u2", 1, 100); err != nil {
		t.Fatalf("u2 must not share u1 windows: %v", err)
	}
}
