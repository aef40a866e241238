// Package ws implements the subscription stream server (spec.md §4.6):
// per-connection WebSocket upgrade, a handler-driven producer loop,
// $type rewriting, and the error-frame/policy-close lifecycle. Grounded
// on the teacher's hijacked-socket relay shape in
// internal/adapter/inbound/httpgw/websocket.go, generalized from a raw
// byte relay between two sockets to a gorilla/websocket server loop
// driving a handler's channel of frames.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xrpc-run/xrpcd/internal/domain/frame"
	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
	"github.com/xrpc-run/xrpcd/internal/domain/params"
	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// AuthResult is what a Verifier returns on success, mirroring
// dispatch.AuthResult's shape. This package cannot import dispatch
// (dispatch already imports ws to drive the WebSocket upgrade), so a
// dispatch.Verifier wanting to guard a subscription is adapted into this
// package's Verifier by the caller registering the subscription.
type AuthResult struct {
	DID   string
	Extra map[string]any
}

// AuthInput is what a Verifier receives for a subscription upgrade: the
// raw request and its decoded, not-yet-validated query params.
type AuthInput struct {
	Req    *http.Request
	Params map[string]any
}

// Verifier authenticates a subscription upgrade before the producer
// starts, mirroring dispatch.Verifier.
type Verifier func(in *AuthInput) (*AuthResult, *xrpcerror.XRPCError)

// Produce is a handler's lazy sequence of subscription messages. It must
// observe ctx cancellation, close values when done, and send at most one
// final error on errc before returning. Producer goroutines are expected
// to release their own resources once ctx is cancelled (no separate
// cleanup hook is needed in the Go mapping of spec.md's async generator
// contract: the deferred channel close/return is the finally-equivalent
// path).
//
// ctx carries the subscription's validated query params and, if the
// subscription has a Verifier, the authenticated identity; retrieve them
// with ParamsFromContext and AuthFromContext.
type Produce func(ctx context.Context) (values <-chan any, errc <-chan error)

// Subscription binds a lexicon NSID to its producer, the lexicon method
// describing its query params (for §4.2 validation), and an optional
// authenticator run before the producer starts.
type Subscription struct {
	NSID    string
	Method  *lexicon.Method
	Auth    Verifier
	Produce Produce
}

type paramsCtxKey struct{}
type authCtxKey struct{}

// ParamsFromContext returns the subscription's decoded, validated query
// parameters.
func ParamsFromContext(ctx context.Context) map[string]any {
	p, _ := ctx.Value(paramsCtxKey{}).(map[string]any)
	return p
}

// AuthFromContext returns the authenticated identity, or nil for
// anonymous access.
func AuthFromContext(ctx context.Context) *AuthResult {
	a, _ := ctx.Value(authCtxKey{}).(*AuthResult)
	return a
}

// Registry resolves a subscription NSID to its Subscription, mirroring
// the lexicon registry's Lookup shape for method resolution.
type Registry struct {
	subs map[string]*Subscription
}

// NewRegistry builds a Registry from a set of subscriptions.
func NewRegistry(subs ...*Subscription) *Registry {
	r := &Registry{subs: make(map[string]*Subscription, len(subs))}
	for _, s := range subs {
		r.subs[s.NSID] = s
	}
	return r
}

// Lookup resolves nsid to its Subscription.
func (r *Registry) Lookup(nsid string) (*Subscription, bool) {
	s, ok := r.subs[nsid]
	return s, ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin enforcement belongs to the deployment's HTTP layer (an
	// external collaborator per spec.md's Non-goals); this server trusts
	// whatever reached it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server drives the per-connection state machine described in spec.md
// §4.6.
type Server struct {
	Registry  *Registry
	Validator lexicon.Validator
	Logger    *slog.Logger
}

// NewServer builds a Server. validator runs a subscription's param
// validation (§4.2) after upgrade; a nil validator skips that step.
func NewServer(registry *Registry, validator lexicon.Validator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Registry: registry, Validator: validator, Logger: logger}
}

// Serve upgrades the connection for nsid, then runs auth and parameter
// validation before starting the producer loop, per the §2 subscription
// flow ("upgrade → NSID lookup → auth → parameter validation →
// handler"). If nsid has no registered subscription, the upgrade is
// rejected outright (no 101). A post-upgrade auth or validation failure
// sends exactly one Error frame and closes with the policy code (1008);
// it never reaches the producer.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, nsid string) {
	sub, ok := s.Registry.Lookup(nsid)
	if !ok {
		http.Error(w, "no such subscription", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", "nsid", nsid, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctx, xerr := s.authenticateAndValidate(ctx, r, sub)
	if xerr != nil {
		s.rejectPolicy(conn, nsid, xerr)
		return
	}

	go s.watchForClientClose(conn, cancel)

	values, errc := sub.Produce(ctx)
	s.runProducerLoop(conn, nsid, values, errc)
}

// authenticateAndValidate runs sub's verifier (if any) and then its
// lexicon param validation (if a Validator is configured), embedding
// the decoded params and resulting identity into ctx for the producer.
func (s *Server) authenticateAndValidate(ctx context.Context, r *http.Request, sub *Subscription) (context.Context, *xrpcerror.XRPCError) {
	var schema []lexicon.ParamDef
	if sub.Method != nil {
		schema = sub.Method.Params
	}
	queryParams := params.Decode(schema, r.URL.Query())

	var auth *AuthResult
	if sub.Auth != nil {
		result, xerr := sub.Auth(&AuthInput{Req: r, Params: queryParams})
		if xerr != nil {
			return ctx, xerr
		}
		auth = result
	}

	if s.Validator != nil && sub.Method != nil {
		if err := s.Validator.AssertValidParams(sub.Method, queryParams); err != nil {
			return ctx, xrpcerror.InvalidRequest("%s", err)
		}
	}

	ctx = context.WithValue(ctx, paramsCtxKey{}, queryParams)
	if auth != nil {
		ctx = context.WithValue(ctx, authCtxKey{}, auth)
	}
	return ctx, nil
}

// rejectPolicy sends a single Error frame derived from xerr and closes
// the connection with the policy-violation code, per §4.6/§4.8.
func (s *Server) rejectPolicy(conn *websocket.Conn, nsid string, xerr *xrpcerror.XRPCError) {
	errFrame := frame.NewError(xerr.WireName(), xerr.WireMessage())
	_ = s.sendFrame(conn, errFrame)
	s.closePolicy(conn)
}

// watchForClientClose reads control frames until the client disconnects,
// then cancels the producer's context. Gorilla's connection has no
// passive "closed" signal short of attempting a read.
func (s *Server) watchForClientClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *Server) runProducerLoop(conn *websocket.Conn, nsid string, values <-chan any, errc <-chan error) {
	for v := range values {
		f, err := toFrame(nsid, v)
		if err != nil {
			s.Logger.Error("failed to frame subscription value", "nsid", nsid, "error", err)
			continue
		}
		if err := s.sendFrame(conn, f); err != nil {
			return
		}
		if f.IsError() {
			s.closePolicy(conn)
			return
		}
	}

	if err := drainErr(errc); err != nil {
		xerr := xrpcerror.FromError(err, nil)
		errFrame := frame.NewError(xerr.WireName(), xerr.WireMessage())
		_ = s.sendFrame(conn, errFrame)
		s.closePolicy(conn)
		return
	}

	s.closeNormal(conn)
}

func drainErr(errc <-chan error) error {
	if errc == nil {
		return nil
	}
	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

func (s *Server) sendFrame(conn *websocket.Conn, f *frame.Frame) error {
	data, err := f.ToBytes()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Server) closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) closePolicy(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// toFrame converts a handler-yielded value into a wire Frame per the
// §4.6 rewriting rules:
//   - a *frame.Frame is sent as-is.
//   - a map with a string "$type" whose value is "<nsid>#name" (matching
//     this subscription) or already "#name" is rewritten to "#name" with
//     header t="#name", $type removed from the body.
//   - a map with a string "$type" that doesn't match is sent with t set
//     to the raw $type value, $type still removed from the body.
//   - anything else (not a map, or $type not a string) is sent as a
//     Message with no t.
func toFrame(nsid string, v any) (*frame.Frame, error) {
	if f, ok := v.(*frame.Frame); ok {
		return f, nil
	}

	m, ok := v.(map[string]any)
	if !ok {
		return frame.NewMessage("", v)
	}
	rawType, ok := m["$type"]
	if !ok {
		return frame.NewMessage("", v)
	}
	typStr, ok := rawType.(string)
	if !ok {
		return frame.NewMessage("", v)
	}

	shallow := make(map[string]any, len(m)-1)
	for k, val := range m {
		if k == "$type" {
			continue
		}
		shallow[k] = val
	}

	t := typStr
	switch {
	case strings.HasPrefix(typStr, "#"):
		// already short form
	case strings.HasPrefix(typStr, nsid+"#"):
		t = "#" + strings.TrimPrefix(typStr, nsid+"#")
	}
	return frame.NewMessage(t, shallow)
}
