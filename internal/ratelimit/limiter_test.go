package ratelimit

import (
	"context"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestLimiter_NilRedis_AllowsEverything(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 100; i++ {
		d, err := l.Allow(context.Background(), "key-1", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed || d.Remaining != 10 {
			t.Fatalf("check %d: expected allowed with full remaining, got %+v", i, d)
		}
	}
}

func TestLimiter_RedisDown_FailOpen(t *testing.T) {
	l := NewLimiter(unreachableRedis(t))
	d, err := l.Allow(context.Background(), "key-1", 5)
	if err == nil {
		t.Error("expected the redis error to be reported")
	}
	if !d.Allowed || d.Remaining != 5 {
		t.Errorf("expected fail-open decision, got %+v", d)
	}
}

func TestLimiter_Window(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	l := NewLimiter(nil)
	l.now = fixedClock(now)

	d, _ := l.Allow(context.Background(), "key-1", 60)
	want := time.Date(2026, 3, 14, 9, 27, 0, 0, time.UTC)
	if !d.ResetAt.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, d.ResetAt)
	}
	if got := l.windowKey("key-1", now.Truncate(time.Minute)); got != "aicore:rl:key-1:1773480360" {
		t.Errorf("unexpected window key %s", got)
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	reset := now.Add(7 * time.Second)

	tests := []struct {
		name string
		d    Decision
		want time.Duration
	}{
		{"allowed", Decision{Allowed: true, ResetAt: reset}, 0},
		{"denied", Decision{ResetAt: reset}, 7 * time.Second},
		{"window already closed", Decision{ResetAt: now.Add(-time.Second)}, 0},
	}
	for _, tt := range tests {
		if got := tt.d.RetryAfter(now); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
