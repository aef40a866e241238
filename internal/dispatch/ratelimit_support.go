package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
)

// consumeLimiters evaluates every limiter concurrently against req
// (spec.md §4.5 "Each request evaluates all applicable limiters
// concurrently") and returns one Outcome per limiter in the same order.
// The first store error encountered (from a fail-closed limiter) is
// returned; outcomes for limiters that errored are omitted from the
// slice entries but other indices remain valid.
func consumeLimiters(ctx context.Context, req *ratelimit.Request, limiters []*ratelimit.Limiter) ([]*ratelimit.Outcome, error) {
	if len(limiters) == 0 {
		return nil, nil
	}
	outcomes := make([]*ratelimit.Outcome, len(limiters))
	errs := make([]error, len(limiters))

	var wg sync.WaitGroup
	for i, l := range limiters {
		wg.Add(1)
		go func(i int, l *ratelimit.Limiter) {
			defer wg.Done()
			status, exceeded, err := l.Consume(ctx, req)
			errs[i] = err
			if status != nil {
				outcomes[i] = &ratelimit.Outcome{Status: status, Exceeded: exceeded}
			}
		}(i, l)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// requestFromHTTP adapts an *http.Request into a ratelimit.Request. Go's
// http.Header already implements ratelimit.HeaderGetter's Get(string)
// string method.
func requestFromHTTP(r *http.Request) *ratelimit.Request {
	return &ratelimit.Request{Header: r.Header}
}

// writeRateHeaders sets the standard rate-limit response header quartet
// from the tightest outcome (spec.md §4.5).
func writeRateHeaders(w http.ResponseWriter, outcome *ratelimit.Outcome) {
	if outcome == nil || outcome.Status == nil {
		return
	}
	s := outcome.Status
	remaining := s.RemainingPoints
	if remaining < 0 {
		remaining = 0
	}
	resetSeconds := int64(s.MsBeforeNext) / 1000
	if int64(s.MsBeforeNext)%1000 != 0 {
		resetSeconds++
	}

	h := w.Header()
	h.Set("RateLimit-Limit", strconv.FormatInt(s.Limit, 10))
	h.Set("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	h.Set("RateLimit-Reset", strconv.FormatInt(resetSeconds, 10))
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", s.Limit, int64(s.Duration.Seconds())))
}
