package ratelimit

import (
	"errors"
	"testing"
)

func TestAllow_BurstThenLimited(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("client-a"); err != nil {
			t.Fatalf("request %d within burst: %v", i+1, err)
		}
	}
	if err := l.Allow("client-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request past burst: err = %v, want ErrRateLimited", err)
	}
}

func TestAllow_ClientsAreIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("client-a"); err != nil {
		t.Fatalf("client-a first request: %v", err)
	}
	if err := l.Allow("client-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("client-a second request should be limited, got %v", err)
	}
	if err := l.Allow("client-b"); err != nil {
		t.Fatalf("client-b must have its own bucket: %v", err)
	}
}

func TestAllow_UnlimitedWhenZero(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("anyone"); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i+1, err)
		}
	}
}
