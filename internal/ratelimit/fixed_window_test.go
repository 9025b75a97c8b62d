package ratelimit

import (
	"testing"
	"time"
)

func TestFixedWindowLimiter(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	base := time.Now()
	limiter.now = func() time.Time { return base }
	if !limiter.Allow("ip-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow("ip-2") {
		t.Fatalf("other keys should not share the quota")
	}
}

func TestFixedWindowLimiterResetsOnNewWindow(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	base := time.Now()
	limiter.now = func() time.Time { return base }

	if !limiter.Allow("ip-1") {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("second request in the same window should be blocked")
	}

	limiter.now = func() time.Time { return base.Add(2 * time.Minute) }
	if !limiter.Allow("ip-1") {
		t.Fatalf("request in the next window should pass")
	}
}

func TestFixedWindowLimiterNilAllows(t *testing.T) {
	var limiter *FixedWindowLimiter
	if !limiter.Allow("ip-1") {
		t.Fatalf("nil limiter should allow everything")
	}
}

func TestFixedWindowLimiterRequiresPositiveBounds(t *testing.T) {
	if _, err := NewFixedWindowLimiter(0, time.Minute); err == nil {
		t.Fatalf("expected constructor error for zero limit")
	}
	if _, err := NewFixedWindowLimiter(1, 0); err == nil {
		t.Fatalf("expected constructor error for zero window")
	}
}
