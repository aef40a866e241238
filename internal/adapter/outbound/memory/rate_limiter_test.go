package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
)

func TestConsumeAllowsWithinLimit(t *testing.T) {
	store := NewRateLimiterStore(nil)
	ctx := context.Background()

	status, err := store.Consume(ctx, "k1", 1, 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.RemainingPoints != 4 || status.ConsumedPoints != 1 || !status.IsFirstInDuration {
		t.Fatalf("got %+v", status)
	}
}

func TestConsumeExceedsLimit(t *testing.T) {
	store := NewRateLimiterStore(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Consume(ctx, "k2", 1, 5, time.Minute); err != nil {
			t.Fatalf("request %d should succeed: %v", i, err)
		}
	}

	status, err := store.Consume(ctx, "k2", 1, 5, time.Minute)
	var exceeded *ratelimit.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	if status.RemainingPoints != 0 {
		t.Fatalf("got %+v", status)
	}
}

func TestConsumeResetsAfterDuration(t *testing.T) {
	store := NewRateLimiterStore(nil)
	ctx := context.Background()

	if _, err := store.Consume(ctx, "k3", 5, 5, 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	status, err := store.Consume(ctx, "k3", 1, 5, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error after window reset: %v", err)
	}
	if !status.IsFirstInDuration || status.ConsumedPoints != 1 {
		t.Fatalf("expected fresh window, got %+v", status)
	}
}

func TestResetClearsBucket(t *testing.T) {
	store := NewRateLimiterStore(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Consume(ctx, "k4", 1, 5, time.Minute); err != nil {
			t.Fatalf("request %d should succeed: %v", i, err)
		}
	}
	if err := store.Reset(ctx, "k4"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	status, err := store.Consume(ctx, "k4", 1, 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
	if !status.IsFirstInDuration || status.RemainingPoints != 4 {
		t.Fatalf("got %+v", status)
	}
}

// TestResetThenFreshConsumeRemainingPoints is the testable property from
// spec.md §8: after reset, a fresh consume yields remainingPoints =
// limit - consumed for that request alone.
func TestResetThenFreshConsumeRemainingPoints(t *testing.T) {
	store := NewRateLimiterStore(nil)
	ctx := context.Background()

	store.Consume(ctx, "k5", 3, 10, time.Minute)
	store.Reset(ctx, "k5")

	status, err := store.Consume(ctx, "k5", 2, 10, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.RemainingPoints != 8 {
		t.Fatalf("expected remainingPoints = limit(10) - consumed(2) = 8, got %d", status.RemainingPoints)
	}
}

func TestConcurrentConsumeIsRaceFree(t *testing.T) {
	store := NewRateLimiterStore(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Consume(ctx, "shared-key", 1, 1000, time.Minute)
		}()
	}
	wg.Wait()
}

func TestCleanupRemovesIdleBucketsAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewRateLimiterStoreWithConfig(5*time.Millisecond, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.Consume(context.Background(), "idle-key", 1, 5, time.Hour)
	store.StartCleanup(ctx)

	time.Sleep(40 * time.Millisecond)
	store.Stop()

	sh := store.shardFor("idle-key")
	sh.mu.Lock()
	_, present := sh.buckets["idle-key"]
	sh.mu.Unlock()
	if present {
		t.Fatal("expected idle bucket to be cleaned up")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	store := NewRateLimiterStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartCleanup(ctx)
	store.Stop()
	store.Stop()
}
