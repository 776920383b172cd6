package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	if err := f.Sleep(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	f.Advance(time.Second)
	if got := f.Now().Sub(start); got != 3*time.Second {
		t.Fatalf("elapsed = %v, want 3s", got)
	}
	if s := f.Sleeps(); len(s) != 1 || s[0] != 2*time.Second {
		t.Fatalf("sleeps = %v", s)
	}
}

func TestSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Real{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Real.Sleep err = %v", err)
	}
	f := NewFake(time.Unix(0, 0))
	if err := f.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Fake.Sleep err = %v", err)
	}
	if len(f.Sleeps()) != 0 {
		t.Fatalf("cancelled sleep must not be recorded")
	}
}

func TestRealSleepWaits(t *testing.T) {
	start := time.Now()
	if err := (Real{}).Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("returned early")
	}
}
