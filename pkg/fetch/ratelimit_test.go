package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestRateLimiter() *RateLimiter {
	return NewRateLimiter(100*time.Millisecond, testLogger())
}

func TestApplyDelay_RespectsContextCancellation(t *testing.T) {
	rl := newTestRateLimiter()
	host := "example.com"

	// Simulate a recent request so delay is needed
	rl.UpdateLastRequestTime(host)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := rl.ApplyDelay(ctx, host, 5*time.Second)
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("ApplyDelay with cancelled context took %v, expected <100ms", elapsed)
	}
}

func TestApplyDelay_SleepsForExpectedDuration(t *testing.T) {
	rl := newTestRateLimiter()
	host := "example.com"

	rl.UpdateLastRequestTime(host)

	start := time.Now()
	err := rl.ApplyDelay(context.Background(), host, 100*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Allow for jitter (+/- 10%) and timer imprecision
	if elapsed < 50*time.Millisecond {
		t.Errorf("ApplyDelay returned too quickly: %v, expected ~100ms", elapsed)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("ApplyDelay took too long: %v, expected ~100ms", elapsed)
	}
}

func TestApplyDelay_NoDelayOnFirstRequest(t *testing.T) {
	rl := newTestRateLimiter()

	start := time.Now()
	err := rl.ApplyDelay(context.Background(), "fresh-host.com", 5*time.Second)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > 10*time.Millisecond {
		t.Errorf("ApplyDelay on first request took %v, expected instant return", elapsed)
	}
}

func TestApplyDelay_ZeroDelayIsNoop(t *testing.T) {
	rl := NewRateLimiter(0, testLogger())
	rl.UpdateLastRequestTime("example.com")

	start := time.Now()
	if err := rl.ApplyDelay(context.Background(), "example.com", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Error("zero delay should not sleep")
	}
}

func TestApplyDelay_SerializesConcurrentCallers(t *testing.T) {
	rl := newTestRateLimiter()
	host := "example.com"
	delay := 50 * time.Millisecond

	var wg sync.WaitGroup
	start := time.Now()
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rl.ApplyDelay(context.Background(), host, delay)
		}()
	}
	wg.Wait()

	// First caller goes immediately, the next two each wait roughly one more slot
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three callers finished in %v, expected at least ~90ms of spacing", elapsed)
	}
}
