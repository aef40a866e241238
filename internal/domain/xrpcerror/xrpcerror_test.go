package xrpcerror

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusCoercion(t *testing.T) {
	e := &XRPCError{Kind: Kind("totally-unknown")}
	if e.Status() != http.StatusInternalServerError {
		t.Fatalf("expected coercion to 500, got %d", e.Status())
	}
}

func TestWireMessageHidesInternalDetails(t *testing.T) {
	e := Wrap(errors.New("db connection refused on 10.0.0.5"))
	if e.WireMessage() != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("internal details leaked: %q", e.WireMessage())
	}
	if e.Message == "" {
		t.Fatal("expected message to be retained for logging")
	}
}

func TestFromErrorParserPanicFallsBackToDefault(t *testing.T) {
	parser := func(err error) *XRPCError { panic("boom") }
	got := FromError(errors.New("whatever"), parser)
	if got.Kind != KindInternalServerError {
		t.Fatalf("expected fallback to InternalServerError, got %v", got.Kind)
	}
}

func TestFromErrorUnwrapsExisting(t *testing.T) {
	inner := New(KindForbidden)
	wrapped := errorsJoin(inner)
	got := FromError(wrapped, nil)
	if got.Kind != KindForbidden {
		t.Fatalf("expected to preserve original kind, got %v", got.Kind)
	}
}

// errorsJoin wraps err so FromError must walk Unwrap() to find it.
func errorsJoin(err error) error {
	return &wrapErr{err}
}

type wrapErr struct{ err error }

func (w *wrapErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapErr) Unwrap() error { return w.err }
