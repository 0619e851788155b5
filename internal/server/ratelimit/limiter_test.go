package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	// 5 requests per minute, burst of 5.
	l := NewLimiter(5, time.Minute, 5)
	defer l.Close()

	key := "test:key"
	for i := range 5 {
		result := l.Allow(key)
		if !result.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if result.Limit != 5 {
			t.Errorf("expected Limit=5, got %d", result.Limit)
		}
	}

	result := l.Allow(key)
	if result.Allowed {
		t.Error("6th request should be rate limited")
	}
	if result.RetryAfter < time.Second {
		t.Errorf("expected RetryAfter >= 1s, got %v", result.RetryAfter)
	}
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l := NewLimiter(5, time.Minute, 5)
	defer l.Close()

	for range 5 {
		l.Allow("key1")
	}
	if l.Allow("key1").Allowed {
		t.Error("key1 should be rate limited")
	}

	for range 5 {
		if !l.Allow("key2").Allowed {
			t.Error("key2 should not be rate limited")
		}
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(1, time.Minute, 5)
	defer l.Close()

	// An idle, fully refilled bucket is dropped; one still owing tokens is
	// kept even when idle, so going quiet does not reset a spent budget.
	l.take("idle")
	l.Allow("busy")
	l.mu.Lock()
	l.buckets["idle"].touched = time.Now().Add(-time.Hour)
	l.buckets["busy"].touched = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	l.sweep(time.Now())

	l.mu.Lock()
	_, idleKept := l.buckets["idle"]
	_, busyKept := l.buckets["busy"]
	l.mu.Unlock()
	if idleKept {
		t.Error("idle refilled bucket should be swept")
	}
	if !busyKept {
		t.Error("bucket with spent tokens should survive the sweep")
	}
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey(ScopeIP, "1.2.3.4", "auth"); got != "ip:1.2.3.4:auth" {
		t.Errorf("BuildKey: got %q", got)
	}
	if got := BuildKey(ScopeUser, "42", "upload"); got != "user:42:upload" {
		t.Errorf("BuildKey: got %q", got)
	}
}
