package ratelimit

import (
	"context"
	"errors"
	"log/slog"
)

// Limiter is a named, prefixed token bucket bound to a Store, per
// spec.md §4.5. Global limiters, named shared limiters, and inline
// route limiters are all just differently-configured Limiters.
type Limiter struct {
	Config Config
	Store  Store
	Logger *slog.Logger
}

// NewLimiter builds a Limiter, filling in the default CalcKey/CalcPoints
// when the config leaves them nil.
func NewLimiter(cfg Config, store Store, logger *slog.Logger) *Limiter {
	if cfg.CalcKey == nil {
		cfg.CalcKey = DefaultCalcKey
	}
	if cfg.CalcPoints == nil {
		cfg.CalcPoints = DefaultCalcPoints
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{Config: cfg, Store: store, Logger: logger}
}

// Consume runs one rate-limit check for req. It returns:
//   - (status, false, nil) on success,
//   - (status, true, nil) when the bucket is exhausted (caller maps this
//     to RateLimitExceeded),
//   - (nil, false, nil) when the request is skipped (CalcKey opted out,
//     or CalcPoints returned <= 0),
//   - (nil, false, err) only when FailClosed is set and the store itself
//     failed; otherwise a store failure is logged and treated as a skip
//     (fail-open), per spec.md §9.
func (l *Limiter) Consume(ctx context.Context, req *Request) (status *Status, exceeded bool, err error) {
	key, ok := l.Config.CalcKey(req)
	if !ok {
		return nil, false, nil
	}
	points := l.Config.CalcPoints(req)
	if points <= 0 {
		return nil, false, nil
	}

	fullKey := l.Config.KeyPrefix + ":" + key
	status, err = l.Store.Consume(ctx, fullKey, points, l.Config.Points, l.Config.Duration)

	var exceededErr *ExceededError
	if errors.As(err, &exceededErr) {
		return exceededErr.Status, true, nil
	}
	if err != nil {
		if l.Config.FailClosed {
			return nil, false, err
		}
		l.Logger.Warn("rate limiter store failed, failing open",
			"limiter", l.Config.Name, "error", err)
		return nil, false, nil
	}
	return status, false, nil
}

// Reset clears req's bucket for this limiter (spec.md §4.5's
// resetRouteRateLimits, scoped to a single limiter instance).
func (l *Limiter) Reset(ctx context.Context, req *Request) error {
	key, ok := l.Config.CalcKey(req)
	if !ok {
		return nil
	}
	return l.Store.Reset(ctx, l.Config.KeyPrefix+":"+key)
}

// BypassFunc decides whether a request skips rate limiting entirely,
// per spec.md §4.5 "Bypass". Evaluated against request context so it
// may consult prior pipeline stages (e.g. auth outcome).
type BypassFunc func(ctx context.Context) bool

// Outcome is one limiter's verdict, paired with its status for
// aggregation.
type Outcome struct {
	Status   *Status
	Exceeded bool
}

// Tightest aggregates concurrently evaluated limiter outcomes per
// spec.md §4.5: any Exceeded wins; otherwise the outcome with the least
// RemainingPoints is chosen. Skipped (nil-status) outcomes are ignored.
// Monotone: adding another limiter to the input never relaxes the
// chosen outcome (testable property, §8).
func Tightest(outcomes []*Outcome) *Outcome {
	var tightest *Outcome
	for _, o := range outcomes {
		if o == nil || o.Status == nil {
			continue
		}
		if o.Exceeded {
			return o
		}
		if tightest == nil || o.Status.RemainingPoints < tightest.Status.RemainingPoints {
			tightest = o
		}
	}
	return tightest
}
