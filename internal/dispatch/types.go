// Package dispatch implements the request dispatcher (spec.md §4.8): route
// registration, the fixed middleware chain, catch-all routing, response
// serialization, and error-taxonomy mapping. Grounded on the teacher's
// interceptor chain (internal/domain/proxy/{interceptor,auth_interceptor,
// ratelimit_interceptor,validation_interceptor}.go) for the fixed-order
// wrapped-composition idea, re-expressed as a single chi catch-all handler
// that runs the stages as sequential calls instead of a linked
// MessageInterceptor chain, since the transport here is plain HTTP rather
// than framed JSON-RPC messages.
package dispatch

import (
	"context"
	"io"
	"net/http"

	"github.com/xrpc-run/xrpcd/internal/adapter/inbound/ws"
	"github.com/xrpc-run/xrpcd/internal/domain/body"
	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// AuthResult is what a Verifier returns on success.
type AuthResult struct {
	DID   string
	Extra map[string]any
}

// AuthInput is what a Verifier receives: the raw request plus whatever of
// params/input has already been decoded at the point auth runs (params
// are available; input is only decoded for procedures, after auth, so it
// is always nil here per the §4.8 ordering).
type AuthInput struct {
	Req    *http.Request
	Params map[string]any
}

// Verifier authenticates a request. Returning a nil result and nil error
// means "no identity, but allowed to proceed" (anonymous access); a
// non-nil *xrpcerror.XRPCError rejects the request outright.
type Verifier func(in *AuthInput) (*AuthResult, *xrpcerror.XRPCError)

// BypassFunc decides whether rate limiting should be skipped for this
// request. auth is nil when evaluated before authentication runs (the
// global tier, per §4.8's catch-all ordering); it is populated for the
// route tier, which runs after auth (§5).
type BypassFunc func(r *http.Request, auth *AuthResult) bool

// Call carries everything a Handler needs, built fresh per request.
type Call struct {
	Req    *http.Request
	NSID   string
	Method *lexicon.Method
	Params map[string]any
	Input  *body.Decoded
	Auth   *AuthResult

	resetRouteLimits func(ctx context.Context) error
}

// ResetRouteRateLimits clears this route's rate-limit counters for the
// current request's key, undoing a preliminary consumption (spec.md
// §4.5 "Bypass").
func (c *Call) ResetRouteRateLimits() error {
	if c.resetRouteLimits == nil {
		return nil
	}
	return c.resetRouteLimits(c.Req.Context())
}

// Output is a handler's result, one of four shapes (spec.md §4.8 step 5).
type Output struct {
	void        bool
	stream      io.Reader
	buffer      []byte
	record      any
	hasRecord   bool
	contentType string
	headers     http.Header
}

// Void returns the no-body 200 case.
func Void() Output { return Output{void: true} }

// JSON returns a success record to be validated/serialized per the
// lexicon's output schema.
func JSON(v any) Output { return Output{record: v, hasRecord: true} }

// Buffer returns a fully-buffered pipe-through response.
func Buffer(contentType string, b []byte) Output {
	return Output{buffer: b, contentType: contentType}
}

// Stream returns a pipe-through streaming response.
func Stream(contentType string, r io.Reader) Output {
	return Output{stream: r, contentType: contentType}
}

// WithHeaders merges extra headers into the success response.
func (o Output) WithHeaders(h http.Header) Output {
	o.headers = h
	return o
}

// Handler implements one method's business logic.
type Handler func(call *Call) (Output, error)

// MethodConfig registers one query/procedure.
type MethodConfig struct {
	Handler        Handler
	Auth           Verifier
	RateLimiters   []*ratelimit.Limiter
	Bypass         BypassFunc
	ValidateOutput bool
}

// StreamConfig registers one subscription's producer and, optionally,
// the verifier that guards it (spec.md §2's "upgrade → NSID lookup →
// auth → parameter validation → handler" flow).
type StreamConfig struct {
	Produce ws.Produce
	Auth    Verifier
}
