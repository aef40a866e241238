package ratelimit

// EvalContext is the variable set a bypass predicate evaluates against,
// populated by the dispatcher (C8) per request (spec.md §4.5 "Bypass").
type EvalContext struct {
	NSID          string
	MethodKind    string // "query" | "procedure" | "subscription"
	Authenticated bool
	IdentityDID   string
	Headers       map[string]string
}

// BypassPredicate decides whether a request should skip rate limiting.
// Implemented by internal/adapter/outbound/cel's compiled CEL programs.
// Evaluation errors are treated as "do not bypass" by callers: failing
// the predicate is independent of a Limiter's own FailClosed setting.
type BypassPredicate func(evalCtx EvalContext) (bool, error)
