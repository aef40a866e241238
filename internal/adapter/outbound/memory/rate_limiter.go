// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
)

const shardCount = 32

// bucket tracks one key's fixed-window counter: how many points have
// been consumed since windowStart, and when that window began.
type bucket struct {
	windowStart time.Time
	consumed    int64
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// RateLimiterStore implements ratelimit.Store as a fixed-window counter
// bucket per key (spec.md §4.5's {durationMs, points, remainingPoints,
// msBeforeNext, consumedPoints, isFirstInDuration} shape), sharded by
// xxhash to reduce lock contention, with the teacher's background
// cleanup + once-guarded Stop() pattern for bounding memory growth.
type RateLimiterStore struct {
	shards          [shardCount]*shard
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxIdle         time.Duration
	logger          *slog.Logger
}

// NewRateLimiterStore creates a store with default cleanup settings: a
// 5-minute sweep interval and a 1-hour max idle time per key.
func NewRateLimiterStore(logger *slog.Logger) *RateLimiterStore {
	return NewRateLimiterStoreWithConfig(5*time.Minute, 1*time.Hour, logger)
}

// NewRateLimiterStoreWithConfig creates a store with custom cleanup
// settings.
func NewRateLimiterStoreWithConfig(cleanupInterval, maxIdle time.Duration, logger *slog.Logger) *RateLimiterStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RateLimiterStore{
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		logger:          logger,
	}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return s
}

func (s *RateLimiterStore) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return s.shards[h%shardCount]
}

// Consume implements ratelimit.Store.
func (s *RateLimiterStore) Consume(ctx context.Context, key string, points, limit int64, duration time.Duration) (*ratelimit.Status, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := time.Now()
	b, exists := sh.buckets[key]
	isFirst := false
	if !exists || now.Sub(b.windowStart) >= duration {
		b = &bucket{windowStart: now, consumed: 0}
		sh.buckets[key] = b
		isFirst = true
	}

	msBeforeNext := int64((duration - now.Sub(b.windowStart)) / time.Millisecond)
	if msBeforeNext < 0 {
		msBeforeNext = 0
	}

	newConsumed := b.consumed + points
	if newConsumed > limit {
		status := &ratelimit.Status{
			Limit:             limit,
			Duration:          duration,
			RemainingPoints:   0,
			MsBeforeNext:      msBeforeNext,
			ConsumedPoints:    b.consumed,
			IsFirstInDuration: isFirst,
		}
		return status, &ratelimit.ExceededError{Status: status}
	}

	b.consumed = newConsumed
	remaining := limit - newConsumed
	return &ratelimit.Status{
		Limit:             limit,
		Duration:          duration,
		RemainingPoints:   remaining,
		MsBeforeNext:      msBeforeNext,
		ConsumedPoints:    newConsumed,
		IsFirstInDuration: isFirst,
	}, nil
}

// Reset implements ratelimit.Store.
func (s *RateLimiterStore) Reset(ctx context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.buckets, key)
	return nil
}

// StartCleanup starts the background sweep goroutine. It stops when ctx
// is cancelled or Stop() is called.
func (s *RateLimiterStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *RateLimiterStore) cleanup() {
	now := time.Now()
	cutoff := now.Add(-s.maxIdle)
	cleaned := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, b := range sh.buckets {
			if b.windowStart.Before(cutoff) {
				delete(sh.buckets, key)
				cleaned++
			}
		}
		sh.mu.Unlock()
	}
	if cleaned > 0 {
		s.logger.Debug("rate limiter cleanup completed", "cleaned_keys", cleaned)
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *RateLimiterStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

var _ ratelimit.Store = (*RateLimiterStore)(nil)
