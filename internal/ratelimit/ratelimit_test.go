package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewLimiter(Config{RequestsPerMinute: 2})
	rl.now = func() time.Time { return now }

	steps := []struct {
		name    string
		advance time.Duration
		key     string
		want    bool
	}{
		{name: "first call", key: "sheet", want: true},
		{name: "second call", key: "sheet", want: true},
		{name: "over the limit", key: "sheet", want: false},
		{name: "other key has its own window", key: "other", want: true},
		{name: "still limited before the window ends", advance: 59 * time.Second, key: "sheet", want: false},
		{name: "new window", advance: time.Second, key: "sheet", want: true},
	}
	for _, s := range steps {
		now = now.Add(s.advance)
		if got := rl.Allow(s.key); got != s.want {
			t.Errorf("%s: Allow(%q) = %v, want %v", s.name, s.key, got, s.want)
		}
	}
	if n := rl.ActiveKeys(); n != 2 {
		t.Errorf("ActiveKeys() = %d, want 2", n)
	}
}

func TestLimiter_DefaultConfig(t *testing.T) {
	rl := NewLimiter(Config{})
	if rl.requestsPerMinute != 60 {
		t.Errorf("requestsPerMinute = %d, want 60", rl.requestsPerMinute)
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1})
	ctx := context.Background()
	if err := rl.Wait(ctx, "sheet"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx, "sheet"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait over the limit = %v, want deadline exceeded", err)
	}
}
