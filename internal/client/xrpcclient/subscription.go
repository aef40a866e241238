// Package xrpcclient implements the reconnecting subscription consumer
// described in spec.md §4.7: a keep-alive WebSocket wrapper with
// exponential backoff, heartbeat liveness, and frame-to-message
// reconstruction. Grounded on the teacher's
// internal/service/proxy_service.go Run/goroutine/errCh shape for
// driving I/O under a cancellable context. The heartbeat goroutine runs
// under a per-connection context that is cancelled when the connection
// ends.
package xrpcclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xrpc-run/xrpcd/internal/domain/frame"
)

const (
	defaultHeartbeatInterval = 10 * time.Second
	defaultMaxReconnectMs    = 30_000
)

// Message is a validated subscription payload with its reconstructed
// lexicon $type, ready for application code.
type Message struct {
	Type  string
	Value any
}

// ValidateFunc filters and/or transforms a reconstructed payload before
// it is yielded to the caller. Returning ok=false skips the frame.
type ValidateFunc func(obj any) (yielded any, ok bool)

// URLFunc resolves the subscription URL for a given (zero-based) connect
// attempt, letting callers recompute query parameters (e.g. a cursor)
// between reconnects.
type URLFunc func(attempt int) (string, error)

// SubscriptionError is the terminal error produced when the server sends
// an Error frame, mirroring spec.md §4.7's `XRPCError(code=-1, name=
// frame.error, message=frame.message)`.
type SubscriptionError struct {
	Name    string
	Message string
}

func (e *SubscriptionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xrpcclient: %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("xrpcclient: %s", e.Name)
}

// Config configures a Client.
type Config struct {
	NSID              string
	URL               URLFunc
	Validate          ValidateFunc
	HeartbeatInterval time.Duration
	MaxReconnectMs    int
	Dialer            *websocket.Dialer
}

// Client is a reconnecting subscription consumer for one NSID.
type Client struct {
	cfg Config
}

// New builds a Client, filling in defaults for zero-valued fields.
func New(cfg Config) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.MaxReconnectMs <= 0 {
		cfg.MaxReconnectMs = defaultMaxReconnectMs
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{cfg: cfg}
}

// Run drives the keep-alive loop until ctx is cancelled, the producer
// ends cleanly, or a non-reconnectable error occurs. onMessage is called
// synchronously for every yielded value; it must not block indefinitely.
func (c *Client) Run(ctx context.Context, onMessage func(Message)) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			if err := sleepCtx(ctx, c.reconnectDelay(attempt)); err != nil {
				return err
			}
		}

		url, err := c.cfg.URL(attempt)
		if err != nil {
			return err
		}
		conn, _, err := c.cfg.Dialer.DialContext(ctx, url, nil)
		if err != nil {
			if !isReconnectable(err) {
				return err
			}
			attempt++
			continue
		}

		runErr := c.runConnection(ctx, conn, onMessage)
		conn.Close()

		if runErr == nil {
			return nil
		}
		if !isReconnectable(runErr) {
			return runErr
		}
		// Reconnect counter resets on open (spec.md §4.7 step 3); the
		// connection that just dropped counts as the first reconnect
		// attempt of the next cycle.
		attempt = 1
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) reconnectDelay(attempt int) time.Duration {
	maxD := time.Duration(c.cfg.MaxReconnectMs) * time.Millisecond
	if attempt <= 1 {
		if time.Second < maxD {
			return time.Second
		}
		return maxD
	}
	return backoffDuration(attempt-2, c.cfg.MaxReconnectMs)
}

// backoffDuration implements backoff(n) = min(maxReconnectMs, 1000 *
// (2^n + jitter)) with jitter in [-0.5, 0.5), spec.md §4.7 step 1.
func backoffDuration(n int, maxReconnectMs int) time.Duration {
	jitter := rand.Float64() - 0.5
	ms := 1000 * (math.Pow(2, float64(n)) + jitter)
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	maxD := time.Duration(maxReconnectMs) * time.Millisecond
	if d > maxD {
		return maxD
	}
	return d
}

// runConnection consumes one WebSocket connection to completion: starts
// the heartbeat, reads frames until the socket closes or a terminal
// condition is reached.
func (c *Client) runConnection(ctx context.Context, conn *websocket.Conn, onMessage func(Message)) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pongReceived atomic.Bool
	pongReceived.Store(true)
	conn.SetPongHandler(func(string) error {
		pongReceived.Store(true)
		return nil
	})

	go c.runHeartbeat(connCtx, conn, &pongReceived)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return err
		}

		f, err := frame.FromBytes(data)
		if err != nil {
			return err
		}
		if f.IsError() {
			msg, _ := f.ErrorMessage()
			return &SubscriptionError{Name: f.ErrorName(), Message: msg}
		}

		typ := reconstructType(c.cfg.NSID, f)
		var body any
		if err := f.DecodeBody(&body); err != nil {
			return err
		}
		value := withType(body, typ)

		if c.cfg.Validate != nil {
			yielded, ok := c.cfg.Validate(value)
			if !ok {
				continue
			}
			value = yielded
		}
		onMessage(Message{Type: typ, Value: value})
	}
}

func (c *Client) runHeartbeat(ctx context.Context, conn *websocket.Conn, pongReceived *atomic.Bool) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !pongReceived.Swap(false) {
				conn.Close()
				return
			}
			deadline := time.Now().Add(c.cfg.HeartbeatInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// reconstructType combines a frame's t with nsid into the lexicon
// $type, per spec.md §4.7: "t" starting with "#" is relative to nsid;
// otherwise it is used verbatim.
func reconstructType(nsid string, f *frame.Frame) string {
	t, hasT := f.Type()
	if !hasT {
		return ""
	}
	if strings.HasPrefix(t, "#") {
		return nsid + t
	}
	return t
}

// withType returns a shallow copy of body with $type set, when body is
// a map and typ is non-empty; otherwise body is returned unchanged.
func withType(body any, typ string) any {
	if typ == "" {
		return body
	}
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	shallow := make(map[string]any, len(m)+1)
	for k, v := range m {
		shallow[k] = v
	}
	shallow["$type"] = typ
	return shallow
}

// isReconnectable reports whether err matches one of the network
// conditions spec.md §4.7 step 7 lists as reconnectable: abnormal-close,
// reset, refused, aborted, pipe, timed-out, cancelled.
func isReconnectable(err error) bool {
	if err == nil {
		return false
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseAbnormalClosure
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, token := range []string{
		"abnormal closure", "connection reset", "connection refused",
		"connection abort", "broken pipe", "timed out", "operation was canceled",
		"operation canceled", "i/o timeout",
	} {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}
