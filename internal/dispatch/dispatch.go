package dispatch

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xrpc-run/xrpcd/internal/adapter/inbound/ws"
	"github.com/xrpc-run/xrpcd/internal/domain/body"
	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
	"github.com/xrpc-run/xrpcd/internal/domain/params"
	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// defaultBlobLimit bounds request body sizes when a method
// doesn't need anything larger; callers override via WithBlobLimit.
const defaultBlobLimit = 10 << 20 // 10 MiB

// Dispatcher resolves "/xrpc/<nsid>" requests to registered methods and
// subscriptions and runs the fixed middleware chain (spec.md §4.8).
type Dispatcher struct {
	registry  *lexicon.Registry
	validator lexicon.Validator
	logger    *slog.Logger

	globalLimiters []*ratelimit.Limiter
	globalBypass   BypassFunc
	errorParser    xrpcerror.ErrorParser
	blobLimit      int64

	methods map[string]*MethodConfig
	streams []*ws.Subscription
	wsSrv   *ws.Server
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithGlobalLimiters sets the dispatcher-wide limiters that run in the
// catch-all before method resolution (spec.md §4.5/§4.8).
func WithGlobalLimiters(limiters ...*ratelimit.Limiter) Option {
	return func(d *Dispatcher) { d.globalLimiters = limiters }
}

// WithGlobalBypass sets the bypass predicate evaluated before the global
// rate-limit tier. It never receives an AuthResult: the global tier runs
// before auth, per §4.8's catch-all ordering.
func WithGlobalBypass(fn BypassFunc) Option {
	return func(d *Dispatcher) { d.globalBypass = fn }
}

// WithErrorParser installs a process-wide handler-error translator
// (spec.md §4.8 "errorParser").
func WithErrorParser(parser xrpcerror.ErrorParser) Option {
	return func(d *Dispatcher) { d.errorParser = parser }
}

// WithBlobLimit overrides the request body size ceiling.
func WithBlobLimit(n int64) Option {
	return func(d *Dispatcher) { d.blobLimit = n }
}

// New builds a Dispatcher over registry, consulting validator for
// parameter/input/output schema checks.
func New(registry *lexicon.Registry, validator lexicon.Validator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		validator: validator,
		logger:    slog.Default(),
		blobLimit: defaultBlobLimit,
		methods:   make(map[string]*MethodConfig),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Method registers a query or procedure handler. The lexicon must
// already declare nsid as a query or procedure; it panics otherwise,
// since a mismatched registration is a boot-time programming error.
func (d *Dispatcher) Method(nsid string, cfg MethodConfig) {
	m, ok := d.registry.Lookup(nsid)
	if !ok {
		panic("dispatch: method registered for unknown nsid " + nsid)
	}
	if m.Kind != lexicon.KindQuery && m.Kind != lexicon.KindProcedure {
		panic("dispatch: " + nsid + " is not a query or procedure")
	}
	if cfg.Handler == nil {
		panic("dispatch: " + nsid + " registered with a nil handler")
	}
	d.methods[nsid] = &cfg
}

// StreamMethod registers a subscription's producer, and optionally its
// authenticator. The lexicon must declare nsid as a subscription.
func (d *Dispatcher) StreamMethod(nsid string, cfg StreamConfig) {
	m, ok := d.registry.Lookup(nsid)
	if !ok {
		panic("dispatch: subscription registered for unknown nsid " + nsid)
	}
	if m.Kind != lexicon.KindSubscription {
		panic("dispatch: " + nsid + " is not a subscription")
	}
	if cfg.Produce == nil {
		panic("dispatch: " + nsid + " registered with a nil Produce")
	}
	d.streams = append(d.streams, &ws.Subscription{
		NSID:    nsid,
		Method:  m,
		Auth:    adaptStreamVerifier(cfg.Auth),
		Produce: cfg.Produce,
	})
}

// adaptStreamVerifier wraps a dispatch.Verifier as a ws.Verifier, the
// smallest possible seam between the two packages' identical-shaped
// auth types: ws cannot import dispatch (dispatch already imports ws
// to drive the WebSocket upgrade), so the two AuthInput/AuthResult
// pairs stay distinct types bridged here rather than shared.
func adaptStreamVerifier(v Verifier) ws.Verifier {
	if v == nil {
		return nil
	}
	return func(in *ws.AuthInput) (*ws.AuthResult, *xrpcerror.XRPCError) {
		result, xerr := v(&AuthInput{Req: in.Req, Params: in.Params})
		if xerr != nil {
			return nil, xerr
		}
		if result == nil {
			return nil, nil
		}
		return &ws.AuthResult{DID: result.DID, Extra: result.Extra}, nil
	}
}

// Router builds the chi router: a single catch-all route at
// "/xrpc/{nsid}" matching every HTTP verb, per spec.md §4.8.
func (d *Dispatcher) Router() http.Handler {
	d.wsSrv = ws.NewServer(ws.NewRegistry(d.streams...), d.validator, d.logger)

	r := chi.NewRouter()
	r.HandleFunc("/xrpc/{nsid}", d.catchAll)
	return r
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (d *Dispatcher) catchAll(w http.ResponseWriter, r *http.Request) {
	nsid := chi.URLParam(r, "nsid")

	if isWebSocketUpgrade(r) {
		d.wsSrv.Serve(w, r, nsid)
		return
	}

	ctx := r.Context()
	req := requestFromHTTP(r)

	var globalOutcomes []*ratelimit.Outcome
	if d.globalBypass == nil || !d.globalBypass(r, nil) {
		outcomes, err := consumeLimiters(ctx, req, d.globalLimiters)
		if err != nil {
			writeXRPCError(w, d.logger, nsid, xrpcerror.Wrap(err))
			return
		}
		globalOutcomes = outcomes
		if tightest := ratelimit.Tightest(outcomes); tightest != nil && tightest.Exceeded {
			writeRateHeaders(w, tightest)
			writeXRPCError(w, d.logger, nsid, xrpcerror.New(xrpcerror.KindRateLimitExceeded))
			return
		}
	}

	m, ok := d.registry.Lookup(nsid)
	if !ok {
		writeXRPCError(w, d.logger, nsid, xrpcerror.New(xrpcerror.KindMethodNotImplemented))
		return
	}
	if m.Kind == lexicon.KindSubscription {
		writeXRPCError(w, d.logger, nsid, xrpcerror.InvalidRequest("subscription method requires a websocket upgrade"))
		return
	}
	if !verbAgrees(m.Kind, r.Method) {
		writeXRPCError(w, d.logger, nsid, xrpcerror.InvalidRequest("method %s does not accept %s", nsid, r.Method))
		return
	}
	cfg, ok := d.methods[nsid]
	if !ok {
		writeXRPCError(w, d.logger, nsid, xrpcerror.New(xrpcerror.KindMethodNotImplemented))
		return
	}

	d.handle(w, r, nsid, m, cfg, globalOutcomes)
}

func verbAgrees(kind lexicon.Kind, httpMethod string) bool {
	switch kind {
	case lexicon.KindQuery:
		return httpMethod == http.MethodGet || httpMethod == http.MethodHead
	case lexicon.KindProcedure:
		return httpMethod == http.MethodPost
	default:
		return false
	}
}

func (d *Dispatcher) handle(w http.ResponseWriter, r *http.Request, nsid string, m *lexicon.Method, cfg *MethodConfig, globalOutcomes []*ratelimit.Outcome) {
	ctx := r.Context()

	queryParams := params.Decode(m.Params, r.URL.Query())

	var auth *AuthResult
	if cfg.Auth != nil {
		result, xerr := cfg.Auth(&AuthInput{Req: r, Params: queryParams})
		if xerr != nil {
			writeXRPCError(w, d.logger, nsid, xerr)
			return
		}
		auth = result
	}

	var decoded *body.Decoded
	if m.Kind == lexicon.KindProcedure {
		dec, xerr := d.parseBody(r, m)
		if xerr != nil {
			writeXRPCError(w, d.logger, nsid, xerr)
			return
		}
		decoded = dec
	}

	if err := d.validator.AssertValidParams(m, queryParams); err != nil {
		writeXRPCError(w, d.logger, nsid, xrpcerror.InvalidRequest("%s", err))
		return
	}
	if decoded != nil {
		if err := d.validator.AssertValidInput(m, decoded.Value); err != nil {
			writeXRPCError(w, d.logger, nsid, xrpcerror.InvalidRequest("%s", err))
			return
		}
	}

	req := requestFromHTTP(r)
	bypass := cfg.Bypass != nil && cfg.Bypass(r, auth)
	var routeOutcomes []*ratelimit.Outcome
	if !bypass {
		outcomes, err := consumeLimiters(ctx, req, cfg.RateLimiters)
		if err != nil {
			writeXRPCError(w, d.logger, nsid, xrpcerror.Wrap(err))
			return
		}
		routeOutcomes = outcomes
	}

	combined := ratelimit.Tightest(append(append([]*ratelimit.Outcome{}, globalOutcomes...), routeOutcomes...))
	writeRateHeaders(w, combined)
	if combined != nil && combined.Exceeded {
		writeXRPCError(w, d.logger, nsid, xrpcerror.New(xrpcerror.KindRateLimitExceeded))
		return
	}

	call := &Call{
		Req:    r,
		NSID:   nsid,
		Method: m,
		Params: queryParams,
		Input:  decoded,
		Auth:   auth,
		resetRouteLimits: func(ctx context.Context) error {
			return resetAll(ctx, req, cfg.RateLimiters)
		},
	}

	out, err := cfg.Handler(call)
	if err != nil {
		writeXRPCError(w, d.logger, nsid, xrpcerror.FromError(err, d.errorParser))
		return
	}
	writeOutput(w, d.logger, nsid, m, d.validator, cfg.ValidateOutput, out)
}

// parseBody reads, decompresses, and decodes a procedure's input per
// spec.md §4.2: content-length/blob-limit enforcement, then the
// content-encoding chain, then content-type based decoding. A method
// declaring no input and receiving an absent body yields a nil Decoded
// rather than an error; a method that declares an input and receives an
// absent body is rejected with InvalidRequest.
func (d *Dispatcher) parseBody(r *http.Request, m *lexicon.Method) (*body.Decoded, *xrpcerror.XRPCError) {
	contentType := r.Header.Get("Content-Type")
	raw, xerr := body.ReadLimited(r.Body, r.ContentLength, d.blobLimit)
	if xerr != nil {
		return nil, xerr
	}
	if !body.Present(raw, contentType) {
		if m.HasInput() {
			return nil, xrpcerror.InvalidRequest("request encoding (Content-Type) required but not provided")
		}
		return nil, nil
	}

	tokens, xerr := body.ParseContentEncodingChain(r.Header.Get("Content-Encoding"))
	if xerr != nil {
		return nil, xerr
	}
	if len(tokens) > 0 {
		raw, xerr = body.Decompress(raw, tokens, d.blobLimit)
		if xerr != nil {
			return nil, xerr
		}
	}

	if m.HasInput() && !body.MimeMatches(m.InputEncoding, contentType) {
		return nil, xrpcerror.InvalidRequest("incorrect content-type for input: %q", contentType)
	}

	return body.Decode(contentType, raw)
}

func resetAll(ctx context.Context, req *ratelimit.Request, limiters []*ratelimit.Limiter) error {
	for _, l := range limiters {
		if err := l.Reset(ctx, req); err != nil {
			return err
		}
	}
	return nil
}
