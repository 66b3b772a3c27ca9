package handlers

import (
	"testing"
	"time"
)

func TestRateLimiterPerKey(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute, func() time.Time { return now })

	if !l.Allow("1") || !l.Allow("1") {
		t.Fatalf("expected first two requests allowed")
	}
	if l.Allow("1") {
		t.Fatalf("expected third request denied")
	}
	if !l.Allow("2") {
		t.Fatalf("expected independent bucket for another key")
	}

	now = now.Add(31 * time.Second)
	if !l.Allow("1") {
		t.Fatalf("expected a token to refill after half the window")
	}
}

func TestNilRateLimiterAllows(t *testing.T) {
	l := NewRateLimiter(0, time.Minute, nil)
	if !l.Allow("x") {
		t.Fatalf("nil limiter should allow")
	}
}
